package pipeline

import (
	"context"

	perrors "github.com/matzehuels/precache/pkg/errors"
	"github.com/matzehuels/precache/pkg/graph"
	"github.com/matzehuels/precache/pkg/metadata"
)

// Load reads the metadata document named by opts and builds its graph.
func (r *Runner) Load(ctx context.Context, opts Options) (*metadata.Document, *graph.Graph, error) {
	switch {
	case opts.MetadataPath == StdinPath:
		return metadata.Parse(opts.Stdin)
	case opts.MetadataPath != "":
		return r.loadFile(opts.MetadataPath)
	}

	cmd := &metadata.Command{
		Cargo:        opts.Cargo,
		ManifestPath: opts.ManifestPath,
		Extra:        opts.CargoArgs,
		Executor:     opts.Executor,
	}
	r.Logger.Debug("running cargo", "args", cmd.Args())
	doc, err := cmd.Run(ctx)
	if err != nil {
		return nil, nil, err
	}
	g, err := doc.Graph()
	if err != nil {
		return nil, nil, err
	}
	return doc, g, nil
}

func (r *Runner) loadFile(path string) (*metadata.Document, *graph.Graph, error) {
	f, err := r.FS.Open(path)
	if err != nil {
		return nil, nil, perrors.Wrap(perrors.ErrCodeInvalidInput, err, "open metadata")
	}
	defer f.Close()
	return metadata.Parse(f)
}
