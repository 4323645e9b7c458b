package models_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"alertsync/internal/models"
)

func TestAlertID(t *testing.T) {
	require.Equal(t, "100-web01", models.AlertID("100", "web01"))
}

func TestSummary(t *testing.T) {
	a := models.Alert{Description: "High CPU", Host: "web01"}
	require.Equal(t, "High CPU on web01", a.Summary())

	a.Host = ""
	require.Equal(t, "High CPU", a.Summary())
}

func TestPagerDutySeverity(t *testing.T) {
	cases := []struct {
		severity int
		want     string
	}{
		{0, "info"},
		{1, "info"},
		{2, "warning"},
		{3, "error"},
		{4, "critical"},
		{5, "critical"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, models.PagerDutySeverity(tc.severity))
	}
}
