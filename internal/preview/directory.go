package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/webp"
)

// Directory serves frames rendered ahead of time by an external capture
// step. Frames for package /Game/Props/Chair live in
// <root>/Props/Chair/0.webp, 1.webp and so on.
type Directory struct {
	root      string
	namespace string
	logger    *slog.Logger
}

// DirectoryOption configures a Directory renderer.
type DirectoryOption func(*Directory)

// WithNamespace sets the content namespace stripped from package names.
func WithNamespace(ns string) DirectoryOption {
	return func(d *Directory) {
		if ns != "" {
			d.namespace = ns
		}
	}
}

// WithLogger sets the renderer logger.
func WithLogger(logger *slog.Logger) DirectoryOption {
	return func(d *Directory) {
		d.logger = logger
	}
}

// NewDirectory creates a Directory renderer rooted at root.
func NewDirectory(root string, opts ...DirectoryOption) *Directory {
	d := &Directory{
		root:      root,
		namespace: "/Game/",
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Capture implements Renderer. Frames are read in order until req.Frames are
// collected or a frame is missing. A file that does not decode as WebP ends
// the capture with an error.
func (d *Directory) Capture(ctx context.Context, req Request) (Result, error) {
	dir, err := d.frameDir(req.Asset.Package())
	if err != nil {
		return Result{}, err
	}

	want := max(req.Frames, 1)
	var res Result
	for i := 0; i < want; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		path := filepath.Join(dir, FrameName(i))
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("failed to read frame %s; %w", path, err)
		}

		cfg, err := webp.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return Result{}, fmt.Errorf("failed to decode frame %s; %w", path, err)
		}
		if req.Resolution > 0 && (cfg.Width != req.Resolution || cfg.Height != req.Resolution) {
			d.logger.Debug("preview frame size differs from capture resolution",
				"file", path, "width", cfg.Width, "height", cfg.Height, "resolution", req.Resolution)
		}
		if req.MinFrameBytes > 0 && len(data) < req.MinFrameBytes {
			res.LowQuality = true
		}
		res.Frames = append(res.Frames, data)
	}

	if len(res.Frames) == 0 {
		return Result{}, fmt.Errorf("%s; %w", req.Asset.ObjectPath, ErrNoFrames)
	}

	fov := req.FOV
	if fov <= 0 {
		fov = DefaultFOV
	}
	padding := req.Padding
	if padding <= 0 {
		padding = 1
	}
	var radius float64
	if req.Asset.Mesh != nil {
		radius = BoundsRadius(req.Asset.Mesh.Size)
	}
	res.Distance = CameraDistance(radius, fov, padding)

	return res, nil
}

func (d *Directory) frameDir(pkg string) (string, error) {
	ns := "/" + strings.Trim(d.namespace, "/") + "/"
	if !strings.HasPrefix(pkg, ns) {
		return "", fmt.Errorf("%s is outside %s; %w", pkg, ns, ErrNoFrames)
	}
	rel := strings.TrimPrefix(pkg, ns)
	return filepath.Join(d.root, filepath.FromSlash(rel)), nil
}
