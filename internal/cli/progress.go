package cli

import (
	"io"

	"github.com/cheggaaa/pb"
)

// progressBar renders executor download progress on a terminal.
type progressBar struct {
	out   io.Writer
	quiet bool
	bar   *pb.ProgressBar
	done  int64
}

func (p *progressBar) Start(total int64) {
	p.done = 0
	if total < 0 {
		total = 0
	}
	p.bar = pb.New64(total)
	p.bar.Output = p.out
	p.bar.NotPrint = p.quiet
	p.bar.ShowSpeed = true
	p.bar.SetUnits(pb.U_BYTES)
	p.bar.Start()
}

func (p *progressBar) Add(n int) {
	p.done += int64(n)
	if p.bar != nil {
		p.bar.Add(n)
	}
}

func (p *progressBar) Finish() {
	if p.bar != nil {
		p.bar.Finish()
	}
}
