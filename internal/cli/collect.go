package cli

import (
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/helixir/literature-collector/internal/collector"
	"github.com/helixir/literature-collector/internal/domain"
	"github.com/helixir/literature-collector/internal/papersources/pubmed"
	"github.com/helixir/literature-collector/internal/query"
)

type collectFlags struct {
	queriesFile string
	expr        string
	name        string
	maxResults  int
	output      string
	noFullText  bool
	abstracts   bool
	convertIDs  bool
}

func newCollectCommand(a *app) *cobra.Command {
	var f collectFlags
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run search queries and store metadata and full text",
		Long: `Runs each query against PubMed, stores every summary under
<output>/<query>/metadata and PMC full text under <output>/<query>/fulltext.

Queries come from --query, then --queries, then collection.queries_file,
falling back to the built-in infectious disease pilot query.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCollect(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.queriesFile, "queries", "", "YAML query set file")
	flags.StringVar(&f.expr, "query", "", "ad hoc query expression")
	flags.StringVar(&f.name, "name", "adhoc", "name of the ad hoc query")
	flags.IntVar(&f.maxResults, "max-results", 0, "cap results per query (overrides the query set)")
	flags.StringVarP(&f.output, "output", "o", "", "output directory (default: output.directory)")
	flags.BoolVar(&f.noFullText, "no-fulltext", false, "skip full-text retrieval")
	flags.BoolVar(&f.abstracts, "abstracts", false, "fetch abstracts through efetch")
	flags.BoolVar(&f.convertIDs, "convert-ids", false, "resolve missing PMCIDs through the ID converter")
	return cmd
}

func (a *app) runCollect(cmd *cobra.Command, f collectFlags) error {
	queries, err := a.loadQueries(cmd, f)
	if err != nil {
		return err
	}

	cfg := a.cfg
	output := cfg.Output.Directory
	if f.output != "" {
		output = f.output
	}

	client := pubmed.New(pubmed.Config{
		BaseURL:           cfg.NCBI.BaseURL,
		OAIURL:            cfg.NCBI.OAIURL,
		IDConvURL:         cfg.NCBI.IDConvURL,
		APIKey:            cfg.NCBI.APIKey,
		Email:             cfg.NCBI.Email,
		Tool:              cfg.NCBI.Tool,
		Timeout:           cfg.NCBI.Timeout,
		RequestsPerSecond: cfg.NCBI.RequestsPerSecond,
		FullTextSource:    domain.FullTextSource(cfg.Collection.FullTextSource),
		Sort:              cfg.Collection.Sort,
		Recorder:          a.metrics,
	})
	if cfg.NCBI.APIKey == "" {
		a.logger.Warn().Msg("no NCBI API key set, requests are limited to 3 per second")
	}

	driver := collector.NewDriver(client, collector.Options{
		OutputDir:     output,
		BatchSize:     cfg.Collection.BatchSize,
		FullText:      cfg.Collection.FullText && !f.noFullText,
		Abstracts:     cfg.Collection.Abstracts || f.abstracts,
		ConvertIDs:    cfg.Collection.ConvertIDs || f.convertIDs,
		ProgressEvery: cfg.Collection.ProgressEvery,
	}, a.logger, a.metrics)

	run, err := driver.Run(cmd.Context(), queries)
	if run != nil {
		printRunSummary(cmd, run)
	}
	return err
}

func (a *app) loadQueries(cmd *cobra.Command, f collectFlags) ([]domain.QueryDescriptor, error) {
	maxResults := a.cfg.Collection.MaxResults
	if cmd.Flags().Changed("max-results") {
		maxResults = f.maxResults
	}

	var (
		queries []domain.QueryDescriptor
		err     error
	)
	switch {
	case f.expr != "":
		var qd domain.QueryDescriptor
		qd, err = query.Single(f.name, f.expr, maxResults)
		queries = []domain.QueryDescriptor{qd}
	case f.queriesFile != "":
		queries, err = query.LoadFile(f.queriesFile)
	case a.cfg.Collection.QueriesFile != "":
		queries, err = query.LoadFile(a.cfg.Collection.QueriesFile)
	default:
		queries = query.Pilot(maxResults)
	}
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("max-results") {
		for i := range queries {
			queries[i].MaxResults = f.maxResults
			if err := query.Validate(queries[i]); err != nil {
				return nil, err
			}
		}
	}
	return queries, nil
}

func printRunSummary(cmd *cobra.Command, run *domain.RunSummary) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Query", "Status", "Found", "Metadata", "Fulltext", "Not found", "Errors"})
	table.SetAutoWrapText(false)
	for _, s := range run.Categories {
		table.Append([]string{
			s.QueryName,
			string(s.Status),
			strconv.Itoa(s.TotalFound),
			strconv.Itoa(s.MetadataCollected),
			strconv.Itoa(s.FullTextCollected),
			strconv.Itoa(s.FullTextNotFound),
			strconv.Itoa(s.FullTextErrors),
		})
	}
	table.SetFooter([]string{
		"Total", "", "",
		strconv.Itoa(run.TotalMetadataCollected),
		strconv.Itoa(run.TotalFullTextCollected),
		strconv.Itoa(run.TotalFullTextNotFound),
		strconv.Itoa(run.TotalFullTextErrors),
	})
	table.Render()
}
