package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daesung-metal/erp/jobs"
)

func TestTaskForKnownJobs(t *testing.T) {
	for _, name := range []string{jobs.TaskBOMIntegrityScan, "bom-scan"} {
		task, err := taskFor(name)
		require.NoError(t, err)
		require.Equal(t, jobs.TaskBOMIntegrityScan, task.Type())
	}

	_, err := taskFor("mail:send")
	require.ErrorContains(t, err, "unsupported job")
}

func TestNilCLIReportsMisconfiguration(t *testing.T) {
	var c *JobsCLI
	_, err := c.InspectQueue()
	require.Error(t, err)
	_, err = c.ListScheduled(5)
	require.Error(t, err)
}
