package main

import (
	"fmt"
	"io"
	"os"

	"github.com/aleksaelezovic/quadstore/internal/config"
	"github.com/aleksaelezovic/quadstore/internal/graphstore"
	"github.com/aleksaelezovic/quadstore/internal/lexicon"
	"github.com/aleksaelezovic/quadstore/internal/metrics"
	"github.com/aleksaelezovic/quadstore/internal/rdfio"
	"github.com/aleksaelezovic/quadstore/internal/storage"
	"github.com/aleksaelezovic/quadstore/pkg/rdf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// session is one opened store plus what a command needs around it
type session struct {
	store    *graphstore.Store
	log      *logrus.Logger
	registry *prometheus.Registry
}

func openSession(c *cli.Context) (*session, error) {
	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return nil, err
	}
	if c.IsSet(flagBackend) {
		cfg.Storage.Backend = c.String(flagBackend)
	}
	if c.IsSet(flagPath) {
		cfg.Storage.Path = c.String(flagPath)
	}
	if c.IsSet(flagInMemory) {
		cfg.Storage.InMemory = c.Bool(flagInMemory)
	}
	if c.IsSet(flagLogLevel) {
		cfg.Log.Level = c.String(flagLogLevel)
	}
	if c.Bool(flagMetrics) {
		cfg.Metrics.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := cfg.Log.NewLogger(c.App.ErrWriter)
	if err != nil {
		return nil, err
	}

	var (
		registry *prometheus.Registry
		m        *metrics.Metrics
	)
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		m = metrics.NewMetrics(registry, cfg.Metrics.Namespace)
	}

	s, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path, cfg.Storage.InMemory)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	st, err := graphstore.Open(s, graphstore.Config{
		Name:            cfg.Name,
		DefaultGraphURI: cfg.DefaultGraphURI,
		Logger:          logger,
		Metrics:         m,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"backend":   cfg.Storage.Backend,
		"path":      cfg.Storage.Path,
		"in_memory": cfg.Storage.InMemory,
	}).Debug("store opened")

	return &session{store: st, log: logger, registry: registry}, nil
}

func (s *session) close(w io.Writer) error {
	if err := s.store.Close(); err != nil {
		return err
	}
	if s.registry == nil {
		return nil
	}

	families, err := s.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func withSession(fn func(c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return err
		}
		err = fn(c, s)
		if cerr := s.close(c.App.Writer); err == nil {
			err = cerr
		}
		return err
	}
}

// inputFlags are the flags of the commands that read RDF files
func inputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "input format (nquads, ntriples, turtle, trig or jsonld), defaults to the file extension"},
		&cli.StringFlag{Name: "base", Usage: "base IRI for relative IRIs in Turtle and TriG input"},
	}
}

func loadCommand() *cli.Command {
	return &cli.Command{
		Name:      "load",
		Usage:     "insert the quads of N-Quads, Turtle, TriG or JSON-LD files",
		ArgsUsage: "<file>... (- reads N-Quads from stdin)",
		Flags:     inputFlags(),
		Action: withSession(func(c *cli.Context, s *session) error {
			if c.NArg() == 0 {
				return fmt.Errorf("no input files")
			}
			for _, path := range c.Args().Slice() {
				quads, err := readFile(c, path)
				if err != nil {
					return err
				}
				n, err := s.store.Insert(quads)
				if err != nil {
					return fmt.Errorf("failed to load %s: %w", path, err)
				}
				s.log.WithFields(logrus.Fields{"file": path, "read": len(quads), "inserted": n}).Info("file loaded")
				fmt.Fprintf(c.App.Writer, "%s: %d quads read, %d inserted\n", path, len(quads), n)
			}
			return nil
		}),
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "delete the quads listed in N-Quads, Turtle, TriG or JSON-LD files",
		ArgsUsage: "<file>...",
		Flags:     inputFlags(),
		Action: withSession(func(c *cli.Context, s *session) error {
			if c.NArg() == 0 {
				return fmt.Errorf("no input files")
			}
			for _, path := range c.Args().Slice() {
				quads, err := readFile(c, path)
				if err != nil {
					return err
				}
				deleted := 0
				for _, q := range quads {
					ok, err := s.store.Delete(q)
					if err != nil {
						return fmt.Errorf("failed to delete %s: %w", q, err)
					}
					if ok {
						deleted++
					}
				}
				fmt.Fprintf(c.App.Writer, "%s: %d quads read, %d deleted\n", path, len(quads), deleted)
			}
			return nil
		}),
	}
}

func matchCommand() *cli.Command {
	return &cli.Command{
		Name:  "match",
		Usage: "print the quads matching a pattern; omitted positions match anything",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "subject", Aliases: []string{"s"}, Usage: "subject term, e.g. <http://example.org/a>"},
			&cli.StringFlag{Name: "predicate", Aliases: []string{"p"}, Usage: "predicate term"},
			&cli.StringFlag{Name: "object", Aliases: []string{"o"}, Usage: "object term, e.g. \"42\"^^<http://www.w3.org/2001/XMLSchema#integer>"},
			&cli.StringFlag{Name: "graph", Aliases: []string{"g"}, Usage: "graph term, or 'default'"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "nquads", Usage: "output format (nquads or jsonld)"},
		},
		Action: withSession(func(c *cli.Context, s *session) error {
			var terms [4]rdf.Term
			for i, name := range []string{"subject", "predicate", "object", "graph"} {
				term, err := parseTermFlag(c.String(name))
				if err != nil {
					return fmt.Errorf("invalid %s: %w", name, err)
				}
				terms[i] = term
			}

			quads, err := s.store.Match(terms[0], terms[1], terms[2], terms[3])
			if err != nil {
				return err
			}
			serializer, err := rdfio.NewSerializer(c.String("format"))
			if err != nil {
				return err
			}
			return serializer.Serialize(c.App.Writer, quads)
		}),
	}
}

func graphsCommand() *cli.Command {
	return &cli.Command{
		Name:  "graphs",
		Usage: "list the named graphs",
		Action: withSession(func(c *cli.Context, s *session) error {
			graphs, err := s.store.Graphs()
			if err != nil {
				return err
			}
			for _, g := range graphs {
				fmt.Fprintln(c.App.Writer, g.String())
			}
			return nil
		}),
	}
}

func costCommand() *cli.Command {
	return &cli.Command{
		Name:      "cost",
		Usage:     "print how often a term was registered beyond the first",
		ArgsUsage: "<term>",
		Action: withSession(func(c *cli.Context, s *session) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one term")
			}
			term, err := rdf.ParseTerm(c.Args().First())
			if err != nil {
				return err
			}
			cost, err := s.store.Cost(term)
			if err != nil {
				return err
			}
			if cost == lexicon.NotFound {
				fmt.Fprintln(c.App.Writer, "not found")
				return nil
			}
			fmt.Fprintln(c.App.Writer, cost)
			return nil
		}),
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "print quad and graph counts",
		Action: withSession(func(c *cli.Context, s *session) error {
			stats, err := s.store.Stats()
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "quads:  %d\ngraphs: %d\n", stats.Quads, stats.Graphs)
			return nil
		}),
	}
}

func clearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "remove every quad, term and graph",
		Action: withSession(func(c *cli.Context, s *session) error {
			return s.store.Clear()
		}),
	}
}

func readFile(c *cli.Context, path string) ([]*rdf.Quad, error) {
	format := c.String("format")
	if format == "" {
		format = rdfio.ContentTypeOf(path)
	}
	parser, err := rdfio.NewParser(format)
	if err != nil {
		return nil, err
	}
	switch p := parser.(type) {
	case *rdfio.TurtleParser:
		p.BaseURI = c.String("base")
	case *rdfio.TriGParser:
		p.BaseURI = c.String("base")
	}

	var r io.Reader = c.App.Reader
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	quads, err := parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return quads, nil
}

func parseTermFlag(value string) (rdf.Term, error) {
	switch value {
	case "":
		return nil, nil
	case "default", "DEFAULT":
		return rdf.NewDefaultGraph(), nil
	}
	return rdf.ParseTerm(value)
}
