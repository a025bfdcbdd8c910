package scan

// Progress receives weighted work units. Start is called once per Run with
// the total, Add with increments and Done when the run ends.
type Progress interface {
	Start(total int)
	Add(n int)
	Done()
}

// Discard ignores all progress.
var Discard Progress = discard{}

type discard struct{}

func (discard) Start(int) {}
func (discard) Add(int)   {}
func (discard) Done()     {}

// Tally records progress in memory.
type Tally struct {
	Total  int
	Count  int
	Starts int
	Dones  int
	// Steps holds every Add argument in order.
	Steps []int
}

func (t *Tally) Start(total int) {
	t.Total += total
	t.Starts++
}

func (t *Tally) Add(n int) {
	t.Count += n
	t.Steps = append(t.Steps, n)
}

func (t *Tally) Done() { t.Dones++ }
