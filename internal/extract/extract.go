// Package extract writes the boot blob and partition payloads of a decoded
// firmware image to disk.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sourcegraph/conc/pool"

	"github.com/deploymenttheory/go-rkimage/internal/logger"
	"github.com/deploymenttheory/go-rkimage/internal/rkimage"
	compression "github.com/deploymenttheory/go-rkimage/internal/utils/compressionutil"
	"github.com/deploymenttheory/go-rkimage/internal/utils/cryptoutil"
	"github.com/deploymenttheory/go-rkimage/internal/utils/errors"
	"github.com/deploymenttheory/go-rkimage/internal/utils/fsutil"
)

// BootFileName is the file the RKFW boot blob is written to.
const BootFileName = "boot.bin"

// Options controls where and how payloads are written.
type Options struct {
	Dir              string
	Compression      compression.Format
	IncludeUnflashed bool
	Overwrite        bool
	Workers          int
}

// Result describes one written file.
type Result struct {
	Name    string // partition name, or "BOOT" for the boot blob
	Index   int    // archive position, -1 for the boot blob
	Path    string
	Size    int // uncompressed bytes
	SHA256  string
	Flashed bool
}

type job struct {
	name    string
	index   int
	file    string
	data    []byte
	flashed bool
}

// Extract writes every selected payload below opts.Dir. container may be nil
// for a bare RKAF archive. Results are returned in archive order, boot blob
// first. The first failure cancels outstanding writes and removes the files
// this call already wrote; files that existed beforehand are left alone.
func Extract(ctx context.Context, archive *rkimage.Archive, container *rkimage.Container, opts Options) ([]Result, error) {
	if archive == nil {
		return nil, fmt.Errorf("%w: nil archive", errors.ErrInvalidArgument)
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: no output directory", errors.ErrInvalidArgument)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	format, err := compression.ParseFormat(string(opts.Compression))
	if err != nil {
		return nil, err
	}
	opts.Compression = format

	jobs := plan(archive, container, opts)

	if err := fsutil.CreateDirIfNotExists(opts.Dir); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrExtractionFailed, err)
	}
	var total uint64
	for _, j := range jobs {
		total += uint64(len(j.data))
	}
	if ok, err := fsutil.HasEnoughDiskSpace(opts.Dir, total); err == nil && !ok {
		return nil, fmt.Errorf("%w: need %d bytes in %s", errors.ErrInsufficientDiskSpace, total, opts.Dir)
	}

	logger.LogInfo("Extracting firmware image", map[string]interface{}{
		"dir":         opts.Dir,
		"files":       len(jobs),
		"bytes":       total,
		"compression": string(opts.Compression),
	})

	results := make([]Result, len(jobs))
	p := pool.New().WithMaxGoroutines(opts.Workers).WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, j := range jobs {
		i, j := i, j
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := write(j, opts)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		removeWritten(results)
		return nil, err
	}
	return results, nil
}

func removeWritten(results []Result) {
	for _, r := range results {
		if r.Path == "" {
			continue
		}
		if err := os.Remove(r.Path); err != nil {
			logger.LogWarn("Failed to remove partial output", map[string]interface{}{
				"path":  r.Path,
				"error": err.Error(),
			})
		}
	}
}

func plan(archive *rkimage.Archive, container *rkimage.Container, opts Options) []job {
	var jobs []job
	ext := ".img" + opts.Compression.Extension()

	if container != nil {
		jobs = append(jobs, job{
			name:    "BOOT",
			index:   -1,
			file:    BootFileName + opts.Compression.Extension(),
			data:    container.Boot,
			flashed: true,
		})
	}
	for i, p := range archive.Partitions {
		if !p.Flashed() && !opts.IncludeUnflashed {
			continue
		}
		jobs = append(jobs, job{
			name:    p.Name,
			index:   i,
			file:    fmt.Sprintf("%02d_%s%s", i, fsutil.SanitizeFileName(p.Name), ext),
			data:    p.Data,
			flashed: p.Flashed(),
		})
	}
	return jobs
}

func write(j job, opts Options) (Result, error) {
	path := filepath.Join(opts.Dir, j.file)

	f, err := fsutil.CreateFile(path, opts.Overwrite)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", errors.ErrExtractionFailed, j.name, err)
	}

	if _, err := compression.CompressBytes(j.data, f, opts.Compression); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return Result{}, fmt.Errorf("%w: %s: %v", errors.ErrExtractionFailed, j.name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return Result{}, fmt.Errorf("%w: %s: %v", errors.ErrExtractionFailed, j.name, err)
	}

	hw, err := cryptoutil.NewHashWriter(cryptoutil.SHA256)
	if err != nil {
		return Result{}, err
	}
	_, _ = hw.Write(j.data)

	logger.LogDebug("Wrote partition", map[string]interface{}{
		"partition": j.name,
		"path":      path,
		"bytes":     len(j.data),
	})

	return Result{
		Name:    j.name,
		Index:   j.index,
		Path:    path,
		Size:    len(j.data),
		SHA256:  hw.SumHex(),
		Flashed: j.flashed,
	}, nil
}
