package fetcher

import (
	"context"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ArchiveName returns the daily export name, {prefix}_{YYYYMMDD}.zip.
func ArchiveName(prefix string, date time.Time) string {
	return prefix + "_" + date.Format("20060102") + ".zip"
}

// ResolveURL appends the daily archive name when rawURL names a directory.
func ResolveURL(rawURL, prefix string, date time.Time) string {
	if strings.HasSuffix(rawURL, "/") {
		return rawURL + ArchiveName(prefix, date)
	}
	return rawURL
}

// Export is a downloaded and unpacked design export.
type Export struct {
	Archive string   `json:"archive"`
	Dir     string   `json:"dir"`
	Files   []string `json:"files"`
	// Shapefiles maps layer names to their .shp paths.
	Shapefiles map[string]string `json:"shapefiles"`
}

// FetchExport downloads rawURL into destDir and extracts it next to the
// archive, in a directory named after it.
func FetchExport(ctx context.Context, f Fetcher, rawURL, destDir string) (*Export, error) {
	log := zap.L().With(zap.String("component", "fetcher"))

	name := path.Base(rawURL)
	if name == "" || name == "." || name == "/" {
		return nil, eris.Errorf("fetcher: no file name in %q", rawURL)
	}
	archive := filepath.Join(destDir, name)

	n, err := f.DownloadToFile(ctx, rawURL, archive)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: download %s", rawURL)
	}
	log.Info("fetcher: downloaded export", zap.String("archive", archive), zap.Int64("bytes", n))

	exp := &Export{Archive: archive, Dir: archive}
	if strings.EqualFold(filepath.Ext(archive), ".zip") {
		exp.Dir = strings.TrimSuffix(archive, filepath.Ext(archive))
		files, err := ExtractZIP(archive, exp.Dir)
		if err != nil {
			return nil, err
		}
		exp.Files = files
	} else {
		exp.Dir = destDir
		exp.Files = []string{archive}
	}
	exp.Shapefiles = Shapefiles(exp.Files)
	log.Info("fetcher: extracted export", zap.String("dir", exp.Dir), zap.Int("files", len(exp.Files)), zap.Int("layers", len(exp.Shapefiles)))
	return exp, nil
}

// Shapefiles picks the .shp files out of files, keyed by base name. The
// base name becomes the PostGIS table name, so its case is kept.
func Shapefiles(files []string) map[string]string {
	out := make(map[string]string)
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f), ".shp") {
			name := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
			out[name] = f
		}
	}
	return out
}

// LayerNames returns the keys of a Shapefiles map in sorted order.
func LayerNames(shapefiles map[string]string) []string {
	names := make([]string, 0, len(shapefiles))
	for n := range shapefiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
