package types

import (
	"fmt"
	"sort"
	"strings"
)

// Flags is a bitset of named boolean object states
type Flags uint64

const (
	// FlagDelete marks an object as logically deleted, pending cleanup
	FlagDelete Flags = 1 << iota
	// FlagDiskless marks a resource without local storage
	FlagDiskless
	// FlagClean marks a volume whose device was confirmed removed
	FlagClean
)

var flagNames = map[Flags]string{
	FlagDelete:   "DELETE",
	FlagDiskless: "DISKLESS",
	FlagClean:    "CLEAN",
}

// IsSet reports whether all given flags are set
func (f Flags) IsSet(flags Flags) bool { return f&flags == flags }

// With returns f with the given flags set
func (f Flags) With(flags Flags) Flags { return f | flags }

// Without returns f with the given flags cleared
func (f Flags) Without(flags Flags) Flags { return f &^ flags }

// Names returns the sorted names of the set flags
func (f Flags) Names() []string {
	var names []string
	for flag, name := range flagNames {
		if f.IsSet(flag) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (f Flags) String() string {
	return strings.Join(f.Names(), "|")
}

// ParseFlags converts flag names into a bitset
func ParseFlags(names []string) (Flags, error) {
	var f Flags
	for _, n := range names {
		found := false
		for flag, name := range flagNames {
			if strings.EqualFold(n, name) {
				f |= flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown flag: %q", n)
		}
	}
	return f, nil
}

// ObjectState is the lifecycle state of an identity object
type ObjectState string

const (
	StateNone          ObjectState = "NONE"
	StateExists        ObjectState = "EXISTS"
	StateMarkedDeleted ObjectState = "MARKED_DELETED"
	StateRemoved       ObjectState = "REMOVED"
)

// lifecycle is embedded by every identity object and derives its state from
// the DELETE flag and the removed marker.
type lifecycle struct {
	flags   Flags
	removed bool
}

// Flags returns the object's flags
func (l *lifecycle) Flags() Flags { return l.flags }

// SetFlags replaces the object's flags and returns the previous value
func (l *lifecycle) SetFlags(f Flags) Flags {
	old := l.flags
	l.flags = f
	return old
}

// IsDeleted reports whether the DELETE flag is set
func (l *lifecycle) IsDeleted() bool { return l.flags.IsSet(FlagDelete) }

// MarkDeleted sets the DELETE flag and returns the previous flags
func (l *lifecycle) MarkDeleted() Flags {
	return l.SetFlags(l.flags.With(FlagDelete))
}

// State returns the lifecycle state
func (l *lifecycle) State() ObjectState {
	switch {
	case l.removed:
		return StateRemoved
	case l.flags.IsSet(FlagDelete):
		return StateMarkedDeleted
	default:
		return StateExists
	}
}

func (l *lifecycle) setRemoved(removed bool) { l.removed = removed }

// Reinstate clears the removed marker of an object whose removal was undone
func (l *lifecycle) Reinstate() { l.removed = false }
