package ledger

import (
	"fmt"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/apperrors"
)

// ViolationType is a closed set; every member has a wire name and a label.
type ViolationType uint8

const (
	ViolationUnknown ViolationType = iota
	PasteAttempt
	CopyAttempt
	CutAttempt
	TabSwitch
	DevtoolsOpen
	FullscreenExit
	RightClick
	DragDrop
	PageReload
	Clipboard

	violationTypeCount
)

var violationNames = [violationTypeCount]string{
	PasteAttempt:   "PASTE_ATTEMPT",
	CopyAttempt:    "COPY_ATTEMPT",
	CutAttempt:     "CUT_ATTEMPT",
	TabSwitch:      "TAB_SWITCH",
	DevtoolsOpen:   "DEVTOOLS_OPEN",
	FullscreenExit: "FULLSCREEN_EXIT",
	RightClick:     "RIGHT_CLICK",
	DragDrop:       "DRAG_DROP",
	PageReload:     "PAGE_RELOAD",
	Clipboard:      "CLIPBOARD",
}

var violationLabels = [violationTypeCount]string{
	PasteAttempt:   "Paste attempt",
	CopyAttempt:    "Copy attempt",
	CutAttempt:     "Cut attempt",
	TabSwitch:      "Switched tab or window",
	DevtoolsOpen:   "Developer tools opened",
	FullscreenExit: "Left fullscreen",
	RightClick:     "Right click",
	DragDrop:       "Drag and drop",
	PageReload:     "Page reload",
	Clipboard:      "Clipboard access",
}

func AllViolationTypes() []ViolationType {
	out := make([]ViolationType, 0, violationTypeCount-1)
	for v := ViolationUnknown + 1; v < violationTypeCount; v++ {
		out = append(out, v)
	}
	return out
}

func (v ViolationType) Valid() bool {
	return v > ViolationUnknown && v < violationTypeCount
}

func (v ViolationType) String() string {
	if !v.Valid() {
		return fmt.Sprintf("ViolationType(%d)", uint8(v))
	}
	return violationNames[v]
}

// Label is the human readable name shown on the monitoring dashboard.
func (v ViolationType) Label() string {
	if !v.Valid() {
		return "Unknown"
	}
	return violationLabels[v]
}

func ParseViolationType(s string) (ViolationType, error) {
	for v := ViolationUnknown + 1; v < violationTypeCount; v++ {
		if violationNames[v] == s {
			return v, nil
		}
	}
	return ViolationUnknown, apperrors.Client("ledger.ParseViolationType", fmt.Errorf("%w: %q", apperrors.ErrInvalidViolationType, s))
}

func (v ViolationType) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, apperrors.ErrInvalidViolationType
	}
	return []byte(violationNames[v]), nil
}

func (v *ViolationType) UnmarshalText(text []byte) error {
	parsed, err := ParseViolationType(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
