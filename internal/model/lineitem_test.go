package model

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "管理費", CategoryManagementFee.Label())
	assert.Equal(t, "編集費・MA費", CategoryEditingMA.Label())
	assert.Equal(t, "other", Category("other").Label())
}

func TestCategoryFromLabel(t *testing.T) {
	t.Parallel()

	for _, c := range Categories {
		got, ok := CategoryFromLabel(c.Label())
		require.True(t, ok, c)
		assert.Equal(t, c, got)
	}

	_, ok := CategoryFromLabel("不明")
	assert.False(t, ok)
}

func TestManagementRows(t *testing.T) {
	t.Parallel()

	items := []LineItem{
		{Category: CategoryShooting},
		{Category: CategoryManagementFee},
		{Category: CategoryManagementFee},
	}
	assert.Equal(t, 2, ManagementRows(items))
	assert.Equal(t, 0, ManagementRows(nil))
}

func TestDate_DaysSince(t *testing.T) {
	t.Parallel()

	today := NewDate(2026, time.October, 17)
	assert.Equal(t, 10, NewDate(2026, time.October, 27).DaysSince(today))
	assert.Equal(t, -3, NewDate(2026, time.October, 14).DaysSince(today))
	assert.Equal(t, 15, NewDate(2026, time.November, 1).DaysSince(today))
}

func TestDate_JSON(t *testing.T) {
	t.Parallel()

	var job Job
	require.NoError(t, json.Unmarshal([]byte(`{"delivery_date":"2026-11-01","shoot_days":2}`), &job))
	assert.Equal(t, "2026-11-01", job.DeliveryDate.String())

	out, err := json.Marshal(job.DeliveryDate)
	require.NoError(t, err)
	assert.Equal(t, `"2026-11-01"`, string(out))

	err = json.Unmarshal([]byte(`{"delivery_date":"11/01/2026"}`), &job)
	assert.Error(t, err)
}

func TestLoadJob_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.yaml")
	content := `
name: spring campaign
duration: 30秒
shoot_days: 2
edit_days: 3
delivery_date: 2026-11-17
staff_roles: [ディレクター, カメラマン]
budget_hint: 500万円
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	job, err := LoadJob(path)
	require.NoError(t, err)
	assert.Equal(t, "spring campaign", job.Name)
	assert.Equal(t, 1, job.Versions)
	assert.Equal(t, 2, job.ShootDays)
	assert.Equal(t, "2026-11-17", job.DeliveryDate.String())
	assert.Equal(t, []string{"ディレクター", "カメラマン"}, job.StaffRoles)
	assert.NoError(t, job.Validate())
}

func TestLoadJob_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"shoot_days":1,"edit_days":1,"delivery_date":"2026-12-01","versions":3}`), 0o600))

	job, err := LoadJob(path)
	require.NoError(t, err)
	assert.Equal(t, 3, job.Versions)
}

func TestLoadJob_Missing(t *testing.T) {
	_, err := LoadJob(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read job")
}

func TestJobValidate(t *testing.T) {
	t.Parallel()

	assert.Error(t, Job{ShootDays: -1, DeliveryDate: NewDate(2026, 1, 1)}.Validate())
	assert.Error(t, Job{ShootDays: 1}.Validate())
	assert.NoError(t, Job{ShootDays: 1, DeliveryDate: NewDate(2026, 1, 1)}.Validate())
}
