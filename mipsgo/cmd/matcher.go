package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zkmips-labs/obelisc/mipsgo/fast"
)

// StepMatcher selects steps of interest during a run,
// e.g. to emit proofs or snapshots at.
type StepMatcher func(st *fast.VMState) bool

// StepMatcherFlag is a urfave/cli flag value that parses a step-matching pattern:
// "never", "always", "=N" for an exact step, or "%N" for every N steps.
type StepMatcherFlag struct {
	repr    string
	matcher StepMatcher
}

func MustStepMatcherFlag(pattern string) *StepMatcherFlag {
	out := new(StepMatcherFlag)
	if err := out.Set(pattern); err != nil {
		panic(err)
	}
	return out
}

func (m *StepMatcherFlag) Set(value string) error {
	m.repr = value
	if value == "" || value == "never" {
		m.matcher = func(st *fast.VMState) bool {
			return false
		}
	} else if value == "always" {
		m.matcher = func(st *fast.VMState) bool {
			return true
		}
	} else if strings.HasPrefix(value, "=") {
		when, err := strconv.ParseUint(value[1:], 0, 64)
		if err != nil {
			return fmt.Errorf("failed to parse step number: %w", err)
		}
		m.matcher = func(st *fast.VMState) bool {
			return st.Step == when
		}
	} else if strings.HasPrefix(value, "%") {
		when, err := strconv.ParseUint(value[1:], 0, 64)
		if err != nil {
			return fmt.Errorf("failed to parse step interval number: %w", err)
		}
		m.matcher = func(st *fast.VMState) bool {
			return st.Step%when == 0
		}
	} else {
		return fmt.Errorf("unrecognized step matcher: %q", value)
	}
	return nil
}

func (m *StepMatcherFlag) String() string {
	return m.repr
}

func (m *StepMatcherFlag) Matcher() StepMatcher {
	if m.matcher == nil { // Set(value) is not called for omitted flags, default to never matching
		return func(st *fast.VMState) bool {
			return false
		}
	}
	return m.matcher
}

func (m *StepMatcherFlag) Clone() any {
	var out StepMatcherFlag
	if err := out.Set(m.repr); err != nil {
		panic(fmt.Errorf("invalid repr: %w", err))
	}
	return &out
}
