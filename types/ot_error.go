// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package types

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// OtError is an OpenThread error code (see OpenThread error.h), extended with the negative daemon-specific
// codes that have no OpenThread equivalent.
type OtError int32

const (
	OT_ERROR_NONE                       OtError = 0
	OT_ERROR_FAILED                     OtError = 1
	OT_ERROR_DROP                       OtError = 2
	OT_ERROR_NO_BUFS                    OtError = 3
	OT_ERROR_NO_ROUTE                   OtError = 4
	OT_ERROR_BUSY                       OtError = 5
	OT_ERROR_PARSE                      OtError = 6
	OT_ERROR_INVALID_ARGS               OtError = 7
	OT_ERROR_SECURITY                   OtError = 8
	OT_ERROR_ADDRESS_QUERY              OtError = 9
	OT_ERROR_NO_ADDRESS                 OtError = 10
	OT_ERROR_ABORT                      OtError = 11
	OT_ERROR_NOT_IMPLEMENTED            OtError = 12
	OT_ERROR_INVALID_STATE              OtError = 13
	OT_ERROR_NO_ACK                     OtError = 14
	OT_ERROR_CHANNEL_ACCESS_FAILURE     OtError = 15
	OT_ERROR_DETACHED                   OtError = 16
	OT_ERROR_FCS                        OtError = 17
	OT_ERROR_NO_FRAME_RECEIVED          OtError = 18
	OT_ERROR_UNKNOWN_NEIGHBOR           OtError = 19
	OT_ERROR_INVALID_SOURCE_ADDRESS     OtError = 20
	OT_ERROR_ADDRESS_FILTERED           OtError = 21
	OT_ERROR_DESTINATION_ADDRESS_FILTER OtError = 22
	OT_ERROR_NOT_FOUND                  OtError = 23
	OT_ERROR_ALREADY                    OtError = 24
	OT_ERROR_IP6_ADDRESS_CREATION       OtError = 26
	OT_ERROR_NOT_CAPABLE                OtError = 27
	OT_ERROR_RESPONSE_TIMEOUT           OtError = 28
	OT_ERROR_DUPLICATED                 OtError = 29
	OT_ERROR_REASSEMBLY_TIMEOUT         OtError = 30
	OT_ERROR_NOT_TMF                    OtError = 31
	OT_ERROR_NOT_LOWPAN_DATA_FRAME      OtError = 32
	OT_ERROR_LINK_MARGIN_LOW            OtError = 34
	OT_ERROR_INVALID_COMMAND            OtError = 35
	OT_ERROR_PENDING                    OtError = 36
	OT_ERROR_REJECTED                   OtError = 37
	OT_ERROR_GENERIC                    OtError = 255
)

// Daemon error codes reported to clients that have no OpenThread equivalent.
const (
	OT_ERROR_UNSUPPORTED_FEATURE OtError = -1
	OT_ERROR_THREAD_DISABLED     OtError = -2
	OT_ERROR_FAILED_PRECONDITION OtError = -3
)

var otErrorStrings = map[OtError]string{
	OT_ERROR_NONE:                       "OK",
	OT_ERROR_FAILED:                     "Failed",
	OT_ERROR_DROP:                       "Drop",
	OT_ERROR_NO_BUFS:                    "NoBufs",
	OT_ERROR_NO_ROUTE:                   "NoRoute",
	OT_ERROR_BUSY:                       "Busy",
	OT_ERROR_PARSE:                      "Parse",
	OT_ERROR_INVALID_ARGS:               "InvalidArgs",
	OT_ERROR_SECURITY:                   "Security",
	OT_ERROR_ADDRESS_QUERY:              "AddressQuery",
	OT_ERROR_NO_ADDRESS:                 "NoAddress",
	OT_ERROR_ABORT:                      "Abort",
	OT_ERROR_NOT_IMPLEMENTED:            "NotImplemented",
	OT_ERROR_INVALID_STATE:              "InvalidState",
	OT_ERROR_NO_ACK:                     "NoAck",
	OT_ERROR_CHANNEL_ACCESS_FAILURE:     "ChannelAccessFailure",
	OT_ERROR_DETACHED:                   "Detached",
	OT_ERROR_FCS:                        "FcsErr",
	OT_ERROR_NO_FRAME_RECEIVED:          "NoFrameReceived",
	OT_ERROR_UNKNOWN_NEIGHBOR:           "UnknownNeighbor",
	OT_ERROR_INVALID_SOURCE_ADDRESS:     "InvalidSourceAddress",
	OT_ERROR_ADDRESS_FILTERED:           "AddressFiltered",
	OT_ERROR_DESTINATION_ADDRESS_FILTER: "DestinationAddressFiltered",
	OT_ERROR_NOT_FOUND:                  "NotFound",
	OT_ERROR_ALREADY:                    "Already",
	OT_ERROR_IP6_ADDRESS_CREATION:       "Ipv6AddressCreationFailure",
	OT_ERROR_NOT_CAPABLE:                "NotCapable",
	OT_ERROR_RESPONSE_TIMEOUT:           "ResponseTimeout",
	OT_ERROR_DUPLICATED:                 "Duplicated",
	OT_ERROR_REASSEMBLY_TIMEOUT:         "ReassemblyTimeout",
	OT_ERROR_NOT_TMF:                    "NotTmf",
	OT_ERROR_NOT_LOWPAN_DATA_FRAME:      "NonLowpanDataFrame",
	OT_ERROR_LINK_MARGIN_LOW:            "LinkMarginLow",
	OT_ERROR_INVALID_COMMAND:            "InvalidCommand",
	OT_ERROR_PENDING:                    "Pending",
	OT_ERROR_REJECTED:                   "Rejected",
	OT_ERROR_GENERIC:                    "GenericError",
	OT_ERROR_UNSUPPORTED_FEATURE:        "UnsupportedFeature",
	OT_ERROR_THREAD_DISABLED:            "ThreadDisabled",
	OT_ERROR_FAILED_PRECONDITION:        "FailedPrecondition",
}

func (e OtError) String() string {
	if s, ok := otErrorStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("UnknownErrorType(%d)", int32(e))
}

// Error is an OtError carrying a human-readable message.
type Error struct {
	Code    OtError
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates an *Error with a formatted message.
func NewError(code OtError, format string, args ...interface{}) error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// ErrorCode extracts the OtError from err. A nil err maps to OT_ERROR_NONE and any error that does not
// wrap an *Error maps to OT_ERROR_FAILED.
func ErrorCode(err error) OtError {
	if err == nil {
		return OT_ERROR_NONE
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return OT_ERROR_FAILED
}

// ErrorMessage returns the message part of err, without the code prefix when err wraps an *Error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := err.(*Error); ok {
		return e.Message
	}
	return err.Error()
}

// Example ot-cli error line: Error 13: InvalidState
var cliErrorPattern = regexp.MustCompile(`^Error (\d+): (.*)$`)

// ParseCliError parses an ot-cli "Error N: Text" output line. Returns nil if the line is not an error line.
func ParseCliError(line string) error {
	m := cliErrorPattern.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return &Error{Code: OT_ERROR_PARSE, Message: line}
	}
	return &Error{Code: OtError(code), Message: m[2]}
}
