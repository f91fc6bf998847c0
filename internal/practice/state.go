package practice

// Step is a wizard step
type Step string

const (
	StepPermission    Step = "permission"
	StepHeadphone     Step = "headphone"
	StepHeadphoneFail Step = "headphoneFail"
	StepCalibration   Step = "calibration"
	StepCalibrating   Step = "calibrating"
	StepSetup         Step = "setup"
	StepDemoLoop      Step = "demoLoop"
	StepDemoEnd       Step = "demoEnd"
	StepAscending     Step = "ascending"
	StepAscendFail    Step = "ascendFail"
	StepDescending    Step = "descending"
	StepDescendFail   Step = "descendFail"
	StepResult        Step = "result"
)

// State is the read-only snapshot published to the UI
type State struct {
	Step      Step
	Message   string
	CurrentF0 float64 // smoothed display pitch, 0 = none

	Beat      int // index in the running timeline, -1 when idle
	BeatLabel string
	BeatType  BeatType
	BeatFreq  float64 // expected pitch of the beat, 0 for rests

	DotX           float64 // CurrentF0 on the indicator (0..1), -1 hidden
	IndicatorRange IndicatorRange
	LadderNotes    []float64

	HighestHz       float64
	LowestHz        float64
	RootIndex       int
	DescendingIndex int

	Busy bool
	Mode string
}

// Listener receives every state change. Called outside the machine's lock.
type Listener func(State)

func initialState(mode ScaleMode) State {
	return State{
		Step:    StepPermission,
		Message: "Allow microphone access to begin.",
		Beat:    -1,
		DotX:    -1,
		Mode:    mode.Name,
	}
}
