// Package apicallrc defines the result record returned by every controller
// operation, and the catalogue of return codes.
//
// A return code is a bitmask: the top two bits hold the severity, bits 24+
// the operation, bits 16..23 the object kind and the low 16 bits the
// specific outcome.
package apicallrc

import (
	"fmt"
	"strings"
)

// Severity masks
const (
	MaskError uint64 = 0xC000000000000000
	MaskWarn  uint64 = 0x8000000000000000
	MaskInfo  uint64 = 0x4000000000000000

	maskSeverity uint64 = 0xC000000000000000
	maskLow      uint64 = 0xFFFF
)

// Operation masks
const (
	MaskCrt uint64 = 1 << 24
	MaskMod uint64 = 2 << 24
	MaskDel uint64 = 3 << 24

	maskOp uint64 = 0xFF << 24
)

// Object masks
const (
	MaskNode        uint64 = 1 << 16
	MaskRscDfn      uint64 = 2 << 16
	MaskRsc         uint64 = 3 << 16
	MaskVlmDfn      uint64 = 4 << 16
	MaskVlm         uint64 = 5 << 16
	MaskNodeConn    uint64 = 6 << 16
	MaskRscConn     uint64 = 7 << 16
	MaskVlmConn     uint64 = 8 << 16
	MaskStorPoolDfn uint64 = 9 << 16
	MaskStorPool    uint64 = 10 << 16
	MaskNetIf       uint64 = 11 << 16
	MaskObjProt     uint64 = 12 << 16

	maskObj uint64 = 0xFF << 16
)

// Low codes
const (
	Created           uint64 = 1
	Deleted           uint64 = 2
	MarkedForDeletion uint64 = 3
	Modified          uint64 = 4

	FailAccDenied          uint64 = 100
	FailInvalidName        uint64 = 110
	FailValueOutOfRange    uint64 = 111
	FailInvalidProperty    uint64 = 112
	FailExists             uint64 = 120
	FailExistsNodeID       uint64 = 121
	FailExistsMinor        uint64 = 122
	FailExistsPort         uint64 = 123
	FailNotFoundNode       uint64 = 130
	FailNotFoundRscDfn     uint64 = 131
	FailNotFoundVlmDfn     uint64 = 132
	FailNotFoundRsc        uint64 = 133
	FailNotFoundStorPool   uint64 = 134
	FailNotFoundStorPlDfn  uint64 = 135
	FailNotFoundNetIf      uint64 = 136
	FailNotFoundObjProt    uint64 = 137
	FailInUse              uint64 = 140
	FailPoolExhausted      uint64 = 141
	FailPersistence        uint64 = 150
	FailRollback           uint64 = 151
	FailImpl               uint64 = 160
	FailUnknown            uint64 = 199
	WarnNotConnected       uint64 = 200
	WarnNotFound           uint64 = 201
	WarnStorPoolUndeclared uint64 = 202
)

// Node
const (
	NodeCreated             = MaskInfo | MaskCrt | MaskNode | Created
	NodeDeleted             = MaskInfo | MaskDel | MaskNode | Deleted
	NodeMarkedForDeletion   = MaskInfo | MaskDel | MaskNode | MarkedForDeletion
	NodeCrtFailAccDenied    = MaskError | MaskCrt | MaskNode | FailAccDenied
	NodeCrtFailInvalidName  = MaskError | MaskCrt | MaskNode | FailInvalidName
	NodeCrtFailExistsNode   = MaskError | MaskCrt | MaskNode | FailExists
	NodeDelFailAccDenied    = MaskError | MaskDel | MaskNode | FailAccDenied
	NodeDelWarnNotFound     = MaskWarn | MaskDel | MaskNode | WarnNotFound
	NodeCrtWarnNotConnected = MaskWarn | MaskCrt | MaskNode | WarnNotConnected
	NodeDelWarnNotConnected = MaskWarn | MaskDel | MaskNode | WarnNotConnected
)

// Resource definition
const (
	RscDfnCreated           = MaskInfo | MaskCrt | MaskRscDfn | Created
	RscDfnDeleted           = MaskInfo | MaskDel | MaskRscDfn | Deleted
	RscDfnMarkedForDeletion = MaskInfo | MaskDel | MaskRscDfn | MarkedForDeletion
	RscDfnCrtFailExists     = MaskError | MaskCrt | MaskRscDfn | FailExists
	RscDfnCrtFailExistsPort = MaskError | MaskCrt | MaskRscDfn | FailExistsPort
	RscDfnDelWarnNotFound   = MaskWarn | MaskDel | MaskRscDfn | WarnNotFound
)

// Volume definition
const (
	VlmDfnCreated            = MaskInfo | MaskCrt | MaskVlmDfn | Created
	VlmDfnDeleted            = MaskInfo | MaskDel | MaskVlmDfn | Deleted
	VlmDfnMarkedForDeletion  = MaskInfo | MaskDel | MaskVlmDfn | MarkedForDeletion
	VlmDfnCrtFailExists      = MaskError | MaskCrt | MaskVlmDfn | FailExists
	VlmDfnCrtFailExistsMinor = MaskError | MaskCrt | MaskVlmDfn | FailExistsMinor
	VlmDfnDelWarnNotFound    = MaskWarn | MaskDel | MaskVlmDfn | WarnNotFound
)

// Resource
const (
	RscCreated             = MaskInfo | MaskCrt | MaskRsc | Created
	RscDeleted             = MaskInfo | MaskDel | MaskRsc | Deleted
	RscMarkedForDeletion   = MaskInfo | MaskDel | MaskRsc | MarkedForDeletion
	RscCrtFailExists       = MaskError | MaskCrt | MaskRsc | FailExists
	RscCrtFailExistsNodeID = MaskError | MaskCrt | MaskRsc | FailExistsNodeID
	RscCrtFailNotFoundNode = MaskError | MaskCrt | MaskRsc | FailNotFoundNode
	RscCrtFailNotFoundDfn  = MaskError | MaskCrt | MaskRsc | FailNotFoundRscDfn
	RscCrtFailNotFoundSP   = MaskError | MaskCrt | MaskRsc | FailNotFoundStorPool
	RscDelWarnNotFound     = MaskWarn | MaskDel | MaskRsc | WarnNotFound
	RscCrtWarnNotConnected = MaskWarn | MaskCrt | MaskRsc | WarnNotConnected
	RscDelWarnNotConnected = MaskWarn | MaskDel | MaskRsc | WarnNotConnected
)

// Volume
const (
	VlmCreated = MaskInfo | MaskCrt | MaskVlm | Created
)

// Storage pool definition and storage pool
const (
	StorPoolDfnCreated         = MaskInfo | MaskCrt | MaskStorPoolDfn | Created
	StorPoolDfnDeleted         = MaskInfo | MaskDel | MaskStorPoolDfn | Deleted
	StorPoolDfnCrtFailExists   = MaskError | MaskCrt | MaskStorPoolDfn | FailExists
	StorPoolDfnDelFailInUse    = MaskError | MaskDel | MaskStorPoolDfn | FailInUse
	StorPoolDfnDelWarnNotFound = MaskWarn | MaskDel | MaskStorPoolDfn | WarnNotFound

	StorPoolCreated             = MaskInfo | MaskCrt | MaskStorPool | Created
	StorPoolDeleted             = MaskInfo | MaskDel | MaskStorPool | Deleted
	StorPoolCrtFailExists       = MaskError | MaskCrt | MaskStorPool | FailExists
	StorPoolCrtFailNotFoundNode = MaskError | MaskCrt | MaskStorPool | FailNotFoundNode
	StorPoolCrtFailNotFoundDfn  = MaskError | MaskCrt | MaskStorPool | FailNotFoundStorPlDfn
	StorPoolDelFailInUse        = MaskError | MaskDel | MaskStorPool | FailInUse
	StorPoolDelWarnNotFound     = MaskWarn | MaskDel | MaskStorPool | WarnNotFound
	StorPoolCrtWarnNotConnected = MaskWarn | MaskCrt | MaskStorPool | WarnNotConnected
	StorPoolDelWarnNotConnected = MaskWarn | MaskDel | MaskStorPool | WarnNotConnected
)

// Object protection
const (
	ObjProtModified          = MaskInfo | MaskMod | MaskObjProt | Modified
	ObjProtModFailAccDenied  = MaskError | MaskMod | MaskObjProt | FailAccDenied
	ObjProtModFailNotFound   = MaskError | MaskMod | MaskObjProt | FailNotFoundObjProt
	ObjProtModFailInvalidArg = MaskError | MaskMod | MaskObjProt | FailInvalidProperty
)

// Connections
const (
	NodeConnCreated         = MaskInfo | MaskCrt | MaskNodeConn | Created
	NodeConnDeleted         = MaskInfo | MaskDel | MaskNodeConn | Deleted
	NodeConnCrtFailExists   = MaskError | MaskCrt | MaskNodeConn | FailExists
	NodeConnDelWarnNotFound = MaskWarn | MaskDel | MaskNodeConn | WarnNotFound

	RscConnCreated         = MaskInfo | MaskCrt | MaskRscConn | Created
	RscConnDeleted         = MaskInfo | MaskDel | MaskRscConn | Deleted
	RscConnCrtFailExists   = MaskError | MaskCrt | MaskRscConn | FailExists
	RscConnDelWarnNotFound = MaskWarn | MaskDel | MaskRscConn | WarnNotFound

	VlmConnCreated         = MaskInfo | MaskCrt | MaskVlmConn | Created
	VlmConnDeleted         = MaskInfo | MaskDel | MaskVlmConn | Deleted
	VlmConnCrtFailExists   = MaskError | MaskCrt | MaskVlmConn | FailExists
	VlmConnDelWarnNotFound = MaskWarn | MaskDel | MaskVlmConn | WarnNotFound
)

// RcEntry is one entry of a result record
type RcEntry struct {
	ReturnCode uint64            `json:"ret_code"`
	Message    string            `json:"message"`
	Cause      string            `json:"cause,omitempty"`
	Correction string            `json:"correction,omitempty"`
	Details    string            `json:"details,omitempty"`
	ObjRefs    map[string]string `json:"obj_refs,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
}

// IsError reports whether the entry has error severity
func (e *RcEntry) IsError() bool { return Severity(e.ReturnCode) == MaskError }

// IsWarning reports whether the entry has warning severity
func (e *RcEntry) IsWarning() bool { return Severity(e.ReturnCode) == MaskWarn }

func (e *RcEntry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s 0x%016X %s", severityName(e.ReturnCode), e.ReturnCode, e.Message)
	if e.Cause != "" {
		fmt.Fprintf(&b, ": %s", e.Cause)
	}
	return b.String()
}

// ApiCallRc is the ordered list of entries produced by one operation
type ApiCallRc struct {
	Entries []*RcEntry `json:"entries"`
}

// New creates an empty result record
func New() *ApiCallRc { return &ApiCallRc{} }

// Add appends an entry
func (rc *ApiCallRc) Add(e *RcEntry) *ApiCallRc {
	rc.Entries = append(rc.Entries, e)
	return rc
}

// AddEntry appends an entry with a code and a message
func (rc *ApiCallRc) AddEntry(code uint64, msg string) *RcEntry {
	e := &RcEntry{ReturnCode: code, Message: msg}
	rc.Entries = append(rc.Entries, e)
	return e
}

// Merge appends all entries of other
func (rc *ApiCallRc) Merge(other *ApiCallRc) {
	if other != nil {
		rc.Entries = append(rc.Entries, other.Entries...)
	}
}

// HasErrors reports whether any entry has error severity
func (rc *ApiCallRc) HasErrors() bool {
	for _, e := range rc.Entries {
		if e.IsError() {
			return true
		}
	}
	return false
}

// Codes returns the return codes in entry order
func (rc *ApiCallRc) Codes() []uint64 {
	codes := make([]uint64, len(rc.Entries))
	for i, e := range rc.Entries {
		codes[i] = e.ReturnCode
	}
	return codes
}

// Has reports whether an entry with the given code exists
func (rc *ApiCallRc) Has(code uint64) bool {
	for _, e := range rc.Entries {
		if e.ReturnCode == code {
			return true
		}
	}
	return false
}

// Severity returns the severity bits of a code
func Severity(code uint64) uint64 { return code & maskSeverity }

// Operation returns the operation bits of a code
func Operation(code uint64) uint64 { return code & maskOp }

// Object returns the object bits of a code
func Object(code uint64) uint64 { return code & maskObj }

// Low returns the specific outcome of a code
func Low(code uint64) uint64 { return code & maskLow }

func severityName(code uint64) string {
	switch Severity(code) {
	case MaskError:
		return "ERROR"
	case MaskWarn:
		return "WARN"
	case MaskInfo:
		return "INFO"
	}
	return "NONE"
}
