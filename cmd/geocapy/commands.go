package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nasdf/geocapy"
	"github.com/nasdf/geocapy/core"
	"github.com/nasdf/geocapy/feature"
	"github.com/nasdf/geocapy/filter"
	"github.com/nasdf/geocapy/geom"
	"github.com/nasdf/geocapy/schema"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

func (a *app) initCommand() *command {
	return &command{
		name:    "init",
		summary: "Create an empty repository.",
		flags:   a.configFlag,
		run: func(ctx context.Context, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			log, err := cfg.Logger(os.Stderr)
			if err != nil {
				return err
			}
			s, release, err := cfg.OpenStorage()
			if err != nil {
				return err
			}
			defer release()
			repo, err := core.Init(ctx, s, cfg.Options(log))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "initialized repository at %s\n", repo.Head())
			return nil
		},
	}
}

func (a *app) schemaCommand() *command {
	var namespace string
	return &command{
		name:    "schema",
		summary: "Manage feature types.",
		subcommands: []*command{{
			name:    "create",
			usage:   "FILE",
			summary: "Register the feature types declared in a GraphQL SDL file.",
			flags: func(fs *pflag.FlagSet) {
				a.configFlag(fs)
				fs.StringVarP(&namespace, "namespace", "n", schema.DefaultNamespace, "namespace of types without a @namespace directive")
			},
			run: func(ctx context.Context, args []string) error {
				if err := exactArgs(args, 1, "FILE"); err != nil {
					return err
				}
				source, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				return a.open(ctx, func(repo *core.Repository) error {
					types, err := repo.CreateSchemaSDL(ctx, namespace, string(source))
					if err != nil {
						return err
					}
					for _, ft := range types {
						fmt.Fprintf(a.out, "created %s\n", ft.Name)
					}
					return nil
				})
			},
		}, {
			name:    "list",
			summary: "Print every registered feature type as JSON.",
			flags:   a.configFlag,
			run: func(ctx context.Context, args []string) error {
				return a.open(ctx, func(repo *core.Repository) error {
					names, err := repo.ListSchemas(ctx)
					if err != nil {
						return err
					}
					for _, name := range names {
						ft, err := repo.Schema(ctx, name)
						if err != nil {
							return err
						}
						data, err := ft.MarshalJSON()
						if err != nil {
							return err
						}
						fmt.Fprintf(a.out, "%s\n", data)
					}
					return nil
				})
			},
		}, {
			name:    "drop",
			usage:   "TYPE",
			summary: "Remove a feature type and all of its features.",
			flags:   a.configFlag,
			run: func(ctx context.Context, args []string) error {
				if err := exactArgs(args, 1, "TYPE"); err != nil {
					return err
				}
				return a.open(ctx, func(repo *core.Repository) error {
					return repo.DropSchema(ctx, schema.ParseName(args[0]))
				})
			},
		}},
	}
}

func (a *app) importCommand() *command {
	var (
		message string
		useIDs  bool
	)
	return &command{
		name:    "import",
		usage:   "TYPE FILE",
		summary: "Insert the features of a GeoJSON feature collection in a single commit. Properties without a matching attribute are skipped.",
		flags: func(fs *pflag.FlagSet) {
			a.configFlag(fs)
			fs.StringVarP(&message, "message", "m", "", "commit message")
			fs.BoolVar(&useIDs, "use-ids", false, "keep the ids of the GeoJSON features")
		},
		run: func(ctx context.Context, args []string) error {
			if err := exactArgs(args, 2, "TYPE FILE"); err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			fc, err := geojson.UnmarshalFeatureCollection(data)
			if err != nil {
				return err
			}
			if len(fc.Features) == 0 {
				return errors.New("no features to import")
			}
			if message == "" {
				message = "import " + filepath.Base(args[1])
			}
			name := schema.ParseName(args[0])
			return a.open(ctx, func(repo *core.Repository) error {
				ft, err := repo.Schema(ctx, name)
				if err != nil {
					return err
				}
				features := make([]*feature.Feature, len(fc.Features))
				for i, gf := range fc.Features {
					features[i] = fromGeoJSON(ft, gf)
				}
				var ids []string
				res, err := geocapy.Execute(ctx, repo, core.Metadata{Message: message}, func(tx *core.Transaction) error {
					inserted, err := tx.Insert(ctx, name, features, useIDs)
					ids = inserted
					return err
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "imported %d features in %s\n", len(ids), res.Commit)
				return nil
			})
		},
	}
}

// fromGeoJSON returns a feature of the given type with the properties and geometry
// of a GeoJSON feature.
func fromGeoJSON(ft *schema.FeatureType, gf *geojson.Feature) *feature.Feature {
	f := feature.New(ft)
	switch id := gf.ID.(type) {
	case string:
		f.ID = id
	case float64:
		f.ID = fmt.Sprintf("%s.%d", ft.Name.Local, int64(id))
	}
	for key, value := range gf.Properties {
		if _, ok := ft.Attribute(key); ok {
			f.Set(key, value)
		}
	}
	if attr := ft.DefaultGeometry(); attr != nil && gf.Geometry != nil {
		f.SetGeometry(attr.Name, gf.Geometry, geom.Code(geom.WGS84))
	}
	return f
}

// queryFlags are the flags that select features of a type.
type queryFlags struct {
	bbox   []float64
	crs    string
	filter string
	max    int
}

func (q *queryFlags) register(fs *pflag.FlagSet) {
	fs.Float64SliceVar(&q.bbox, "bbox", nil, "bounding box as minx,miny,maxx,maxy")
	fs.StringVar(&q.crs, "crs", "", "reference system of the bounding box and the output")
	fs.StringVarP(&q.filter, "filter", "f", "", "filter document in YAML or JSON")
	fs.IntVar(&q.max, "max", 0, "maximum number of features")
}

func (q *queryFlags) query() (core.Query, error) {
	query := core.Query{MaxFeatures: q.max}
	if q.crs != "" {
		query.CRS = geom.Parse(q.crs)
	}
	var filters filter.And
	if q.filter != "" {
		var doc map[string]any
		if err := yaml.Unmarshal([]byte(q.filter), &doc); err != nil {
			return core.Query{}, fmt.Errorf("invalid filter: %w", err)
		}
		f, err := filter.Parse(doc)
		if err != nil {
			return core.Query{}, err
		}
		filters = append(filters, f)
	}
	if q.bbox != nil {
		if len(q.bbox) != 4 {
			return core.Query{}, errors.New("bbox requires four values")
		}
		bound := orb.Bound{Min: orb.Point{q.bbox[0], q.bbox[1]}, Max: orb.Point{q.bbox[2], q.bbox[3]}}
		filters = append(filters, filter.BBox{Bound: bound, CRS: query.CRS})
	}
	switch len(filters) {
	case 0:
	case 1:
		query.Filter = filters[0]
	default:
		query.Filter = filters
	}
	return query, nil
}

func (a *app) countCommand() *command {
	var q queryFlags
	return &command{
		name:    "count",
		usage:   "TYPE",
		summary: "Print the number of matching features.",
		flags: func(fs *pflag.FlagSet) {
			a.configFlag(fs)
			q.register(fs)
		},
		run: func(ctx context.Context, args []string) error {
			if err := exactArgs(args, 1, "TYPE"); err != nil {
				return err
			}
			query, err := q.query()
			if err != nil {
				return err
			}
			return a.open(ctx, func(repo *core.Repository) error {
				count, err := repo.Count(ctx, schema.ParseName(args[0]), query, core.AutoCommit())
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, count)
				return nil
			})
		},
	}
}

func (a *app) boundsCommand() *command {
	var q queryFlags
	return &command{
		name:    "bounds",
		usage:   "TYPE",
		summary: "Print the envelope of the matching features as minx miny maxx maxy.",
		flags: func(fs *pflag.FlagSet) {
			a.configFlag(fs)
			q.register(fs)
		},
		run: func(ctx context.Context, args []string) error {
			if err := exactArgs(args, 1, "TYPE"); err != nil {
				return err
			}
			query, err := q.query()
			if err != nil {
				return err
			}
			return a.open(ctx, func(repo *core.Repository) error {
				b, ok, err := repo.Bounds(ctx, schema.ParseName(args[0]), query, core.AutoCommit())
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.out, "empty")
					return nil
				}
				fmt.Fprintf(a.out, "%g %g %g %g\n", b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y())
				return nil
			})
		},
	}
}

func (a *app) logCommand() *command {
	return &command{
		name:    "log",
		summary: "Print the commit history of the head.",
		flags:   a.configFlag,
		run: func(ctx context.Context, args []string) error {
			return a.open(ctx, func(repo *core.Repository) error {
				iter := repo.Log(ctx)
				for !iter.Done() {
					lnk, commit, err := iter.Next(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(a.out, "commit %s\n", lnk)
					fmt.Fprintf(a.out, "Author: %s\n", commit.Author)
					fmt.Fprintf(a.out, "Date:   %s\n\n", commit.Timestamp.Format(time.RFC3339))
					fmt.Fprintf(a.out, "    %s\n\n", commit.Message)
				}
				return nil
			})
		},
	}
}

func (a *app) exportCommand() *command {
	return &command{
		name:    "export",
		usage:   "FILE",
		summary: "Write every object reachable from the head to a CAR file.",
		flags:   a.configFlag,
		run: func(ctx context.Context, args []string) error {
			if err := exactArgs(args, 1, "FILE"); err != nil {
				return err
			}
			out, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer out.Close()
			return a.open(ctx, func(repo *core.Repository) error {
				count, err := repo.Export(ctx, out)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "exported %d objects\n", count)
				return nil
			})
		},
	}
}
