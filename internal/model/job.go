package model

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Job holds the production parameters collected from the request form.
type Job struct {
	Name          string   `json:"name" yaml:"name"`
	Duration      string   `json:"duration" yaml:"duration"`
	Versions      int      `json:"versions" yaml:"versions"`
	ShootDays     int      `json:"shoot_days" yaml:"shoot_days"`
	EditDays      int      `json:"edit_days" yaml:"edit_days"`
	DeliveryDate  Date     `json:"delivery_date" yaml:"delivery_date"`
	CastMain      int      `json:"cast_main" yaml:"cast_main"`
	CastExtra     int      `json:"cast_extra" yaml:"cast_extra"`
	Talent        bool     `json:"talent" yaml:"talent"`
	StaffRoles    []string `json:"staff_roles" yaml:"staff_roles"`
	Location      string   `json:"location" yaml:"location"`
	Equipment     []string `json:"equipment" yaml:"equipment"`
	SetDesign     string   `json:"set_design" yaml:"set_design"`
	CG            bool     `json:"cg" yaml:"cg"`
	Narration     bool     `json:"narration" yaml:"narration"`
	Music         string   `json:"music" yaml:"music"`
	MA            bool     `json:"ma" yaml:"ma"`
	Deliverables  []string `json:"deliverables" yaml:"deliverables"`
	SubtitleLangs []string `json:"subtitle_langs" yaml:"subtitle_langs"`
	UsageRegion   string   `json:"usage_region" yaml:"usage_region"`
	UsagePeriod   string   `json:"usage_period" yaml:"usage_period"`
	BudgetHint    string   `json:"budget_hint" yaml:"budget_hint"`
	Notes         string   `json:"notes" yaml:"notes"`
}

// Date is a calendar date serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate truncates t to its calendar date in UTC.
func NewDate(y int, m time.Month, d int) Date {
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, eris.Wrapf(err, "model: parse date %q", s)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// DaysSince returns the whole number of calendar days from other to d.
func (d Date) DaysSince(other Date) int {
	a := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(other.Year(), other.Month(), other.Day(), 0, 0, 0, 0, time.UTC)
	return int(a.Sub(b).Hours() / 24)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return eris.Wrap(err, "model: date must be a string")
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	if node.Value == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(node.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate checks the fields the pricing step depends on.
func (j Job) Validate() error {
	if j.ShootDays < 0 || j.EditDays < 0 {
		return eris.New("model: shoot_days and edit_days must be non-negative")
	}
	if j.DeliveryDate.IsZero() {
		return eris.New("model: delivery_date is required")
	}
	return nil
}

// LoadJob reads a job definition from a .yaml/.yml or .json file.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "model: read job %s", path)
	}

	var job Job
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &job)
	default:
		err = yaml.Unmarshal(data, &job)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "model: decode job %s", path)
	}
	if job.Versions <= 0 {
		job.Versions = 1
	}
	return &job, nil
}
