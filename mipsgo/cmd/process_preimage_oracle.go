package cmd

import (
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/zkmips-labs/obelisc/mipsgo/fast"
	"github.com/zkmips-labs/obelisc/mipsgo/preimage"
)

var _ fast.PreimageOracle = (*ProcessPreimageOracle)(nil)

// ProcessPreimageOracle runs a pre-image server as a sub-process,
// and talks to it over the hint and pre-image file channels.
// Every pre-image it serves is verified against the requested key.
type ProcessPreimageOracle struct {
	pCl     *preimage.VerifyingOracle
	hCl     *preimage.HintWriter
	cmd     *exec.Cmd
	waitErr chan error
}

func NewProcessPreimageOracle(name string, args []string) (*ProcessPreimageOracle, error) {
	if name == "" {
		return &ProcessPreimageOracle{}, nil
	}

	pClientRW, pOracleRW, err := preimage.CreateBidirectionalChannel()
	if err != nil {
		return nil, err
	}
	hClientRW, hOracleRW, err := preimage.CreateBidirectionalChannel()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(name, args...) // nosemgrep
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{
		hOracleRW.Reader(),
		hOracleRW.Writer(),
		pOracleRW.Reader(),
		pOracleRW.Writer(),
	}

	out := &ProcessPreimageOracle{
		pCl:     preimage.NewVerifyingOracle(preimage.NewOracleClient(pClientRW)),
		hCl:     preimage.NewHintWriter(hClientRW),
		cmd:     cmd,
		waitErr: make(chan error),
	}
	return out, nil
}

func (p *ProcessPreimageOracle) Hint(v []byte) {
	if p.hCl == nil { // no hint processor
		return
	}
	if err := p.hCl.Hint(preimage.RawHint(v)); err != nil {
		panic(err) // hint channel is broken, no way to continue the VM
	}
}

func (p *ProcessPreimageOracle) GetPreimage(k [32]byte) ([]byte, error) {
	if p.pCl == nil {
		return nil, errors.New("no pre-image retriever available")
	}
	return p.pCl.Get(preimage.RawKey(k))
}

func (p *ProcessPreimageOracle) Start() error {
	if p.cmd == nil {
		return nil
	}
	err := p.cmd.Start()
	go p.wait()
	return err
}

func (p *ProcessPreimageOracle) Close() error {
	if p.cmd == nil {
		return nil
	}
	// Give the pre-image server time to exit cleanly before killing it.
	time.Sleep(time.Second * 1)
	_ = p.cmd.Process.Signal(os.Interrupt)
	return <-p.waitErr
}

func (p *ProcessPreimageOracle) wait() {
	err := p.cmd.Wait()
	var waitErr error
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || !exitErr.Success() {
		waitErr = err
	}
	p.waitErr <- waitErr
	close(p.waitErr)
}
