package exedra

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Command is one vendor control-program command unit.
type Command struct {
	ID     string `json:"id"`
	Level  int    `json:"level"`
	Base   string `json:"base"`
	Offset int    `json:"offset"`
}

// Step is one client-facing schedule step, converted to commands with
// offset measured in minutes since midnight.
type Step struct {
	Time string `json:"time"`
	Dim  int    `json:"dim"`
}

// CommandSetDimmingLevel is the only device command type currently relayed.
const CommandSetDimmingLevel = "setDimmingLevel"

var validBases = map[string]bool{
	"sunset":   true,
	"sunrise":  true,
	"midnight": true,
}

// NewCommand builds a single vendor command.
func NewCommand(level int, base string, offset int) (Command, error) {
	if level < 0 || level > 100 {
		return Command{}, fmt.Errorf("level must be between 0 and 100, got %d", level)
	}
	if !validBases[base] {
		return Command{}, fmt.Errorf("base must be 'sunset', 'sunrise' or 'midnight', got %q", base)
	}
	return Command{
		ID:     fmt.Sprintf("%d-%s-%d-%s", level, base, offset, uuid.New().String()[:6]),
		Level:  level,
		Base:   base,
		Offset: offset,
	}, nil
}

// ScheduleFromSteps converts {time, dim} steps to midnight-based commands.
// Steps with an empty time are skipped; an unparsable time is an error.
func ScheduleFromSteps(steps []Step) ([]Command, error) {
	var commands []Command
	for _, step := range steps {
		if step.Time == "" {
			continue
		}
		hour, minute, err := parseClock(step.Time)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule step %q: %w", step.Time, err)
		}
		cmd, err := NewCommand(step.Dim, "midnight", hour*60+minute)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule step %q: %w", step.Time, err)
		}
		commands = append(commands, cmd)
	}
	return commands, nil
}

// ValidateCommands checks that every command is well formed for the vendor.
func ValidateCommands(commands []Command) error {
	for i, cmd := range commands {
		if cmd.Level < 0 || cmd.Level > 100 {
			return fmt.Errorf("command %d: level must be 0-100, got %d", i, cmd.Level)
		}
		if !validBases[cmd.Base] {
			return fmt.Errorf("command %d: base must be 'sunset', 'sunrise' or 'midnight', got %q", i, cmd.Base)
		}
	}
	return nil
}

func parseClock(value string) (int, int, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM")
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad hour: %w", err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minute: %w", err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("out of range")
	}
	return hour, minute, nil
}
