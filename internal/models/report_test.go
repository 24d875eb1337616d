package models

import (
	"encoding/json"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportLinesSingleGroup(t *testing.T) {
	r := &Report{
		Groups: []Group{{PID: 100, Name: "nginx", Counts: StateCounts{Listen: 1, Established: 1}}},
		Total:  StateCounts{Listen: 1, Established: 1},
	}
	assert.Equal(t, []string{"100 nginx: Listen: 1, Established: 1, Other: 0"}, r.Lines())
}

func TestReportLinesWithTotal(t *testing.T) {
	r := &Report{
		Groups: []Group{
			{PID: 100, Name: "a", Counts: StateCounts{Listen: 1}},
			{PID: 200, Name: "b", Counts: StateCounts{Listen: 1}},
		},
		Total: StateCounts{Listen: 2},
	}
	assert.Equal(t, []string{
		"100 a: Listen: 1, Established: 0, Other: 0",
		"200 b: Listen: 1, Established: 0, Other: 0",
		"Total: Listen: 2, Established: 0, Other: 0",
	}, r.Lines())
}

func TestStateCounts(t *testing.T) {
	var c StateCounts
	for _, s := range []ConnectionState{StateListening, StateEstablished, StateTimeWait, StateNotApplicable, StateListening} {
		c.Add(s)
	}
	assert.Equal(t, StateCounts{Listen: 2, Established: 1, Other: 2}, c)
	assert.Equal(t, 5, c.Total())
}

func TestConnectionRecordJSON(t *testing.T) {
	r := ConnectionRecord{
		Protocol:  ProtocolTCP,
		Local:     netip.MustParseAddrPort("127.0.0.1:80"),
		Remote:    netip.MustParseAddrPort("127.0.0.1:5000"),
		HasRemote: true,
		State:     StateEstablished,
		PID:       12,
	}
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "TCP", decoded["protocol"])
	assert.Equal(t, "ESTABLISHED", decoded["state"])
	assert.Equal(t, "127.0.0.1:80", decoded["local"])
}

func TestParseHostingKind(t *testing.T) {
	kind, err := ParseHostingKind("apppool")
	require.NoError(t, err)
	assert.Equal(t, HostingSlot, kind)

	kind, err = ParseHostingKind("")
	require.NoError(t, err)
	assert.Equal(t, HostingUnknown, kind)

	_, err = ParseHostingKind("container")
	assert.Error(t, err)
}
