package projector

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limberduck/tsccm/internal/resource"
)

func raws(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, s := range items {
		out[i] = json.RawMessage(s)
	}
	return out
}

func TestProject_UserRecord(t *testing.T) {
	in := raws(`{"id":"7","username":"alice","firstname":"Alice","lastname":"A",
		"role":{"id":"2","name":"Security Manager"},
		"createdTime":"1600000000","modifiedTime":"1600000060","lastLogin":"0",
		"locked":"false","failedLogins":"0"}`)
	table, err := Project(resource.User, in, time.UTC)
	require.NoError(t, err)
	require.Len(t, table.Records, 1)
	r := table.Records[0]

	get := func(name string) any {
		v, ok := r.Get(name)
		require.True(t, ok, "column %s", name)
		return v
	}
	assert.Equal(t, "Security Manager", get("roleName"))
	assert.Equal(t, "2020-09-13 12:26:40", get("createdTime"))
	assert.Equal(t, "2020-09-13 12:27:40", get("modifiedTime"))
	assert.Equal(t, "1970-01-01 00:00:00", get("lastLogin"))
	assert.Equal(t, "alice", get("username"))
	_, ok := r.Get("role")
	assert.False(t, ok, "nested source object must not appear as a column")
}

func TestProject_LengthAndOrder(t *testing.T) {
	var items []string
	for i := range 25 {
		items = append(items, fmt.Sprintf(`{"id":"%d","name":"group-%02d"}`, i, i))
	}
	table, err := Project(resource.Group, raws(items...), time.UTC)
	require.NoError(t, err)
	require.Len(t, table.Records, 25)
	for i, r := range table.Records {
		v, _ := r.Get("name")
		assert.Equal(t, fmt.Sprintf("group-%02d", i), v)
	}
}

func TestProject_Empty(t *testing.T) {
	table, err := Project(resource.Scan, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, table.Records)
	assert.Equal(t, []string{"id", "name", "ownerUsername", "scheduleType", "scheduleEnabled",
		"scheduleRepeatRule", "scheduleStart", "scheduleNextRun", "createdTime", "modifiedTime"}, table.Columns)
}

func TestProject_MissingFieldsAreEmpty(t *testing.T) {
	table, err := Project(resource.Scan, raws(`{"id":"1"}`, `[]`), time.UTC)
	require.NoError(t, err)
	require.Len(t, table.Records, 2)
	for _, r := range table.Records {
		v, _ := r.Get("ownerUsername")
		assert.Equal(t, "", v)
		v, _ = r.Get("scheduleNextRun")
		assert.Equal(t, "", v)
	}
}

func TestProject_InvalidJSON(t *testing.T) {
	_, err := Project(resource.Role, raws(`{"id":`), time.UTC)
	assert.Error(t, err)
}

func TestProject_ScanResultDuration(t *testing.T) {
	table, err := Project(resource.ScanResult, raws(
		`{"id":"1","scanDuration":"-1","startTime":"-1","totalIPs":"10"}`,
		`{"id":"2","scanDuration":3725,"startTime":"1600000000"}`,
	), time.UTC)
	require.NoError(t, err)
	d0, _ := table.Records[0].Get("scanDuration")
	d1, _ := table.Records[1].Get("scanDuration")
	assert.Equal(t, "0:00:00", d0)
	assert.Equal(t, "1:02:05", d1)
	s0, _ := table.Records[0].Get("startTime")
	s1, _ := table.Records[1].Get("startTime")
	assert.Equal(t, "", s0)
	assert.Equal(t, "2020-09-13 12:26:40", s1)
}

func TestFormatDuration(t *testing.T) {
	tests := map[string]string{
		"-1":     "0:00:00",
		"0":      "0:00:00",
		"59":     "0:00:59",
		"3725":   "1:02:05",
		"90061":  "25:01:01",
		"":       "",
		"n/a":    "n/a",
		"-86400": "0:00:00",
		"010":    "0:00:10",
		"0x10":   "0x10",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatDuration(in), "FormatDuration(%q)", in)
	}
}

func TestFormatTimestamp_Location(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	assert.Equal(t, "2020-09-13 14:26:40", FormatTimestamp("1600000000", loc))
	assert.Equal(t, "never", FormatTimestamp("never", loc))
	assert.Equal(t, "", FormatTimestamp("", loc))
}

func TestFormatTimestamp_DecimalAndUnset(t *testing.T) {
	assert.Equal(t, "", FormatTimestamp("-1", time.UTC))
	assert.Equal(t, "", FormatTimestamp("-1600000000", time.UTC))
	assert.Equal(t, "1970-01-01 00:00:10", FormatTimestamp("010", time.UTC))
	assert.Equal(t, "0x10", FormatTimestamp("0x10", time.UTC))
	assert.Equal(t, "1970-01-01 00:00:00", FormatTimestamp("0", time.UTC))
}

func TestValueScalars(t *testing.T) {
	table, err := Project(resource.Status, raws(
		`{"jobd":"Running","licenseStatus":{"state":"valid"},"licensedIPs":512,"activeIPs":1.5}`,
	), time.UTC)
	require.NoError(t, err)
	r := table.Records[0]
	v, _ := r.Get("licenseStatus")
	assert.Equal(t, `{"state":"valid"}`, v)
	v, _ = r.Get("licensedIPs")
	assert.Equal(t, int64(512), v)
	v, _ = r.Get("activeIPs")
	assert.Equal(t, 1.5, v)
}

func TestRecordMarshalJSON_KeepsOrder(t *testing.T) {
	r := NewRecord([]string{"zeta", "alpha", "mid"}, []any{"z", int64(1), true})
	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":"z","alpha":1,"mid":true}`, string(b))
}
