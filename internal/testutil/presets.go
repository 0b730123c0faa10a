package testutil

// WithBetaDiversityScenario adds analysis 1 with one root BIOM table and a
// Beta Diversity job (legacy code 2) that recorded a distance matrix.
func (b *Builder) WithBetaDiversityScenario() *Builder {
	return b.
		WithAnalysis(1, Name("beta"), RootFile(File(10, "1_analysis_18S.biom", "biom"))).
		WithJob(100, 2,
			Options(`{"--otu_table_fp":"/qiita/analysis/1_analysis_18S.biom","tree_fp":"/x/tree.nwk"}`),
			Result(File(11, "100_beta_diversity.txt", "plain_text")),
			InAnalysis(1))
}

// WithStandardTestData adds a dataset that exercises every policy branch.
//
// Structure:
//
//	analysis 1: 1_analysis_18S.biom
//	  job 100 Beta Diversity, result      -> success + distance_matrix
//	  job 101 Summarize Taxa, no result   -> error with synthesized log
//	  job 102 Alpha Rarefaction, log 7    -> error reusing log 7
//	  job 103 empty options               -> pruned
//	  job 104 command code 9              -> skipped (unmapped)
//	  job 105 malformed options           -> skipped (unparseable)
//	analysis 2: 2_analysis_16S.biom, 2_analysis_ITS.biom, no jobs
//	job 200 orphan with result file 20    -> pruned, file detached
func (b *Builder) WithStandardTestData() *Builder {
	const src = `"--otu_table_fp":"1_analysis_18S.biom"`
	return b.
		WithAnalysis(1, Name("standard"), RootFile(File(10, "1_analysis_18S.biom", "biom"))).
		WithAnalysis(2, Email("shared@microbio.me"),
			RootFile(File(30, "2_analysis_16S.biom", "biom")),
			RootFile(File(31, "2_analysis_ITS.biom", "biom")),
			RootFile(File(32, "2_analysis_mapping.txt", "plain_text"))).
		WithJob(100, 2, Options(`{`+src+`,"tree_fp":"/x/tree.nwk","metrics":"unweighted_unifrac"}`),
			Result(File(11, "100_beta_diversity.txt", "plain_text")), InAnalysis(1)).
		WithJob(101, 1, Options(`{`+src+`,"category":"BODY_SITE"}`), JobStatus(StatusRunning), InAnalysis(1)).
		WithJob(102, 3, Options(`{`+src+`,"num_steps":10}`), ErrorLog(7, "out of memory"), InAnalysis(1)).
		WithJob(103, 2, Options(""), InAnalysis(1)).
		WithJob(104, 9, Options(`{`+src+`}`), InAnalysis(1)).
		WithJob(105, 1, Options(`{`+src+`,`), InAnalysis(1)).
		WithJob(200, 2, Options(`{"tree_fp":"/x/tree.nwk"}`), Result(File(20, "200_orphan.txt", "plain_text")))
}
