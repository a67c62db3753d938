package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/backhaul/internal/core"
)

type ReconcileStorageWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *ReconcileStorageWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
}

func (s *ReconcileStorageWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *ReconcileStorageWorkflowTestSuite) TestNoUsers() {
	s.env.OnActivity("ListUsersWithCompletedBackups", mock.Anything).Return([]string{}, nil)

	s.env.ExecuteWorkflow(ReconcileStorageWorkflow)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *ReconcileStorageWorkflowTestSuite) TestAllVerifiedNoDowngrade() {
	s.env.OnActivity("ListUsersWithCompletedBackups", mock.Anything).Return([]string{"user-1"}, nil)
	s.env.OnActivity("ReconcileUser", mock.Anything, "user-1").
		Return(&core.ReconcileReport{TotalCompleted: 4, Verified: 4}, nil)

	s.env.ExecuteWorkflow(ReconcileStorageWorkflow)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	s.env.AssertNotCalled(s.T(), "MarkLogsFailed", mock.Anything, mock.Anything)
}

func (s *ReconcileStorageWorkflowTestSuite) TestMissingLogsDowngraded() {
	s.env.OnActivity("ListUsersWithCompletedBackups", mock.Anything).Return([]string{"user-1"}, nil)
	s.env.OnActivity("ReconcileUser", mock.Anything, "user-1").
		Return(&core.ReconcileReport{TotalCompleted: 3, Verified: 1, Missing: 2, MissingLogs: []string{"log-2", "log-3"}}, nil)
	s.env.OnActivity("MarkLogsFailed", mock.Anything, []string{"log-2", "log-3"}).Return(int64(2), nil)

	s.env.ExecuteWorkflow(ReconcileStorageWorkflow)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *ReconcileStorageWorkflowTestSuite) TestUnreachableLogsNotDowngraded() {
	s.env.OnActivity("ListUsersWithCompletedBackups", mock.Anything).Return([]string{"user-1"}, nil)
	s.env.OnActivity("ReconcileUser", mock.Anything, "user-1").
		Return(&core.ReconcileReport{
			TotalCompleted: 2, Unreachable: 2,
			UnreachableLogs: []string{"log-4", "log-5"},
		}, nil)
	// No MarkLogsFailed expectation: an outage must not downgrade anything.

	s.env.ExecuteWorkflow(ReconcileStorageWorkflow)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	s.env.AssertNotCalled(s.T(), "MarkLogsFailed", mock.Anything, mock.Anything)
}

func (s *ReconcileStorageWorkflowTestSuite) TestOneUserFailingDoesNotStopBatch() {
	s.env.OnActivity("ListUsersWithCompletedBackups", mock.Anything).Return([]string{"user-1", "user-2"}, nil)
	s.env.OnActivity("ReconcileUser", mock.Anything, "user-1").
		Return(nil, errors.New("storage unreachable"))
	s.env.OnActivity("ReconcileUser", mock.Anything, "user-2").
		Return(&core.ReconcileReport{TotalCompleted: 1, Verified: 0, Missing: 1, MissingLogs: []string{"log-9"}}, nil)
	s.env.OnActivity("MarkLogsFailed", mock.Anything, []string{"log-9"}).Return(int64(1), nil)

	s.env.ExecuteWorkflow(ReconcileStorageWorkflow)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func TestReconcileStorageWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(ReconcileStorageWorkflowTestSuite))
}
