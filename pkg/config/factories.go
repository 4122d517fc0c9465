package config

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/fileshover/internal/logger"
	"github.com/marmos91/fileshover/pkg/filetree"
)

// FilesystemOptions is the decoded form of files.filesystem.
type FilesystemOptions struct {
	// Root is the directory to serve. Required.
	Root string `mapstructure:"root"`

	// BufferSize is the read buffer per open file. 0 means the FileTree
	// default.
	BufferSize int `mapstructure:"buffer_size"`

	// SniffContentType detects the type of files whose extension is not
	// in the MIME table from their first bytes.
	SniffContentType bool `mapstructure:"sniff_content_type"`
}

// CreateFileTree opens the file source selected by the configuration.
//
// This factory function uses the Type field to determine which source
// implementation to create, then decodes the type-specific configuration
// from the corresponding map and passes it to the source's constructor.
//
// Supported types:
//   - "filesystem": a local directory served through pkg/filetree
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: File source configuration
//
// Returns:
//   - *filetree.FileTree: Opened tree, to be closed by the caller
//   - error: Configuration or initialization error
func CreateFileTree(ctx context.Context, cfg *FilesConfig) (*filetree.FileTree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "filesystem":
		return createFilesystemTree(cfg.Filesystem)
	default:
		return nil, fmt.Errorf("unknown file source type: %q", cfg.Type)
	}
}

// createFilesystemTree opens a filesystem-backed tree.
func createFilesystemTree(options map[string]any) (*filetree.FileTree, error) {
	opts, err := decodeFilesystemOptions(options)
	if err != nil {
		return nil, err
	}

	// Validate required fields
	if opts.Root == "" {
		return nil, fmt.Errorf("filesystem source: root is required (set --root or files.filesystem.root)")
	}

	tree, err := filetree.New(opts.Root, filetree.Options{
		BufferSize:       opts.BufferSize,
		SniffContentType: opts.SniffContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open filesystem source: %w", err)
	}

	logger.Debug("Filesystem source: root=%s buffer_size=%d sniff=%v",
		tree.Root(), opts.BufferSize, opts.SniffContentType)

	return tree, nil
}

// decodeFilesystemOptions decodes files.filesystem. Values coming from the
// environment arrive as strings, so weak typing is enabled.
func decodeFilesystemOptions(options map[string]any) (FilesystemOptions, error) {
	var opts FilesystemOptions

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return opts, err
	}
	if err := decoder.Decode(options); err != nil {
		return opts, fmt.Errorf("failed to decode filesystem source config: %w", err)
	}

	return opts, nil
}
