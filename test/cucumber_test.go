package cucumber

import (
	"context"
	"testing"

	"github.com/cucumber/godog"
	"github.com/reelforge/clip-engine/test/steps"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	// Allows our steps to share data between themselves, e.g. the engine under test and the jobs submitted so far
	stepContext := steps.NewStepContext()

	ctx.Step(`^the clip engine is running$`, stepContext.StartEngine)
	ctx.Step(`^the clip engine is running with a maximum source duration of "(\d+)" seconds$`, stepContext.StartEngineWithMaxDuration)
	ctx.Step(`^the clip engine is running with an unreachable AI co-processor$`, stepContext.StartEngineWithDeadAI)
	ctx.Step(`^the clip engine is running with a retention period of "(\d+)" days$`, stepContext.StartEngineWithRetention)
	ctx.Step(`^the source video is "([0-9.]+)" seconds long$`, stepContext.SetSourceDuration)
	ctx.Step(`^the transcript contains "(\d+)" scored segments$`, stepContext.SetSegmentCount)
	ctx.Step(`^the acquisition stage blocks until released$`, stepContext.GateAcquisition)
	ctx.Step(`^the acquisition stage is released$`, stepContext.ReleaseAcquisition)

	ctx.Step(`^I submit an analysis request for "([^"]*)"$`, stepContext.SubmitHosted)
	ctx.Step(`^I submit an analysis request for "([^"]*)" with a minimum score of "([0-9.]+)"$`, stepContext.SubmitHostedWithMinScore)
	ctx.Step(`^I submit an analysis request for the direct file "([^"]*)"$`, stepContext.SubmitHTTP)
	ctx.Step(`^I submit an analysis request for a local file with a minimum score of "([0-9.]+)"$`, stepContext.SubmitUploadWithMinScore)
	ctx.Step(`^I delete the latest job$`, stepContext.DeleteLatestJob)

	ctx.Step(`^the job completes within "(\d+)" seconds with progress "(\d+)"$`, stepContext.JobCompletes)
	ctx.Step(`^the first job completes within "(\d+)" seconds$`, stepContext.FirstJobCompletes)
	ctx.Step(`^the job fails within "(\d+)" seconds with code "([^"]*)"$`, stepContext.JobFails)
	ctx.Step(`^the job produced "(\d+)" clips?$`, stepContext.JobProducedClips)
	ctx.Step(`^every clip file exists on disk$`, stepContext.ClipFilesExist)
	ctx.Step(`^no clip is longer than "([0-9.]+)" seconds$`, stepContext.ClipsNoLongerThan)
	ctx.Step(`^every clip score is between "([0-9.]+)" and "([0-9.]+)"$`, stepContext.ClipScoresWithin)
	ctx.Step(`^the processing and clips directories are empty$`, stepContext.WorkDirsEmpty)
	ctx.Step(`^"(\d+)" days pass$`, stepContext.DaysPass)
	ctx.Step(`^the job is gone$`, stepContext.JobGone)
	ctx.Step(`^its files are gone$`, stepContext.JobFilesGone)
	ctx.Step(`^the deleted job never ran$`, stepContext.DeletedJobNeverRan)
	ctx.Step(`^the deleted job is gone$`, stepContext.DeletedJobGone)

	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		return ctx, stepContext.Close(ctx)
	})
}
