package batch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/fiber-bom/internal/model"
)

// ReportLayout stamps batch report file names.
const ReportLayout = "20060102-150405"

// Summary is the outcome of one Driver.Run.
type Summary struct {
	RunID     string                 `json:"run_id,omitempty"`
	Variant   string                 `json:"variant"`
	Template  string                 `json:"template"`
	OutputDir string                 `json:"output_dir"`
	Started   time.Time              `json:"started"`
	Duration  time.Duration          `json:"duration"`
	Status    model.RunStatus        `json:"status"`
	Succeeded int                    `json:"succeeded"`
	Failed    int                    `json:"failed"`
	Results   []model.BoundaryResult `json:"results"`
}

func (s *Summary) add(r model.BoundaryResult) {
	s.Results = append(s.Results, r)
	if r.OK() {
		s.Succeeded++
	} else {
		s.Failed++
	}
}

// Failures returns the errored results in input order.
func (s *Summary) Failures() []model.BoundaryResult {
	var out []model.BoundaryResult
	for _, r := range s.Results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// Files returns the workbooks written, in input order.
func (s *Summary) Files() []string {
	var out []string
	for _, r := range s.Results {
		if r.OK() {
			out = append(out, r.File)
		}
	}
	return out
}

// Print writes a human-readable report to w.
func (s *Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "%s: %d succeeded, %d failed (%s) in %s\n",
		s.Variant, s.Succeeded, s.Failed, s.Status, s.Duration.Round(time.Millisecond))
	for _, r := range s.Results {
		if r.OK() {
			fmt.Fprintf(w, "  ok     %-24s %s\n", r.Boundary, r.File)
			continue
		}
		fmt.Fprintf(w, "  failed %-24s [%s] %s\n", r.Boundary, r.Stage, r.Error)
	}
}

type reportEntry struct {
	Boundary string `yaml:"boundary"`
	Status   string `yaml:"status"`
	Stage    string `yaml:"stage"`
	File     string `yaml:"file,omitempty"`
	Items    int    `yaml:"items"`
	Error    string `yaml:"error,omitempty"`
	Duration string `yaml:"duration"`
}

type report struct {
	RunID      string        `yaml:"run_id,omitempty"`
	Variant    string        `yaml:"variant"`
	Template   string        `yaml:"template"`
	OutputDir  string        `yaml:"output_dir"`
	Started    time.Time     `yaml:"started"`
	Duration   string        `yaml:"duration"`
	Status     string        `yaml:"status"`
	Succeeded  int           `yaml:"succeeded"`
	Failed     int           `yaml:"failed"`
	Boundaries []reportEntry `yaml:"boundaries"`
}

// MarshalYAML renders durations as strings so reports stay readable.
func (s *Summary) MarshalYAML() (any, error) {
	r := report{
		RunID:     s.RunID,
		Variant:   s.Variant,
		Template:  s.Template,
		OutputDir: s.OutputDir,
		Started:   s.Started,
		Duration:  s.Duration.Round(time.Millisecond).String(),
		Status:    string(s.Status),
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
	}
	for _, b := range s.Results {
		r.Boundaries = append(r.Boundaries, reportEntry{
			Boundary: b.Boundary,
			Status:   string(b.Status),
			Stage:    string(b.Stage),
			File:     b.File,
			Items:    b.Items,
			Error:    b.Error,
			Duration: b.Duration.Round(time.Millisecond).String(),
		})
	}
	return r, nil
}

// WriteYAML saves the summary as batch_{YYYYMMDD-HHMMSS}.yaml in dir and
// returns its path.
func (s *Summary) WriteYAML(dir string) (string, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return "", eris.Wrap(err, "batch: marshal summary")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "batch: create %s", dir)
	}
	path := filepath.Join(dir, "batch_"+s.Started.Format(ReportLayout)+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "batch: write %s", path)
	}
	return path, nil
}
