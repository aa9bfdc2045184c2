package perfmodel

import (
	"fmt"
	"io"

	"github.com/sarchlab/fifosim/sim/timing"
)

// RunHello runs a one-process simulation whose process greets once and
// ends.
func RunHello(name string, w io.Writer) error {
	s := timing.NewScheduler()
	defer s.Close()

	s.Spawn(timing.NewProcess(name, func(p *timing.Process) error {
		_, err := fmt.Fprintf(w, "%s: Hello fifosim!\n", p.Name())
		return err
	}))

	return s.Run()
}
