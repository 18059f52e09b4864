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

package ipc

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/openthread/ot-daemon/types"
)

func grpcCode(code types.OtError) codes.Code {
	switch code {
	case types.OT_ERROR_NONE:
		return codes.OK
	case types.OT_ERROR_INVALID_ARGS:
		return codes.InvalidArgument
	case types.OT_ERROR_INVALID_STATE, types.OT_ERROR_THREAD_DISABLED, types.OT_ERROR_FAILED_PRECONDITION:
		return codes.FailedPrecondition
	case types.OT_ERROR_BUSY:
		return codes.Unavailable
	case types.OT_ERROR_ABORT:
		return codes.Aborted
	case types.OT_ERROR_NOT_IMPLEMENTED, types.OT_ERROR_UNSUPPORTED_FEATURE:
		return codes.Unimplemented
	case types.OT_ERROR_RESPONSE_TIMEOUT:
		return codes.DeadlineExceeded
	case types.OT_ERROR_REJECTED:
		return codes.PermissionDenied
	default:
		return codes.Unknown
	}
}

// toStatus converts an operation result to a gRPC error. The OtError code travels as an Int32Value detail.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	code := types.ErrorCode(err)
	st := status.New(grpcCode(code), types.ErrorMessage(err))
	if withCode, derr := st.WithDetails(wrapperspb.Int32(int32(code))); derr == nil {
		st = withCode
	}
	return st.Err()
}

// fromStatus converts a gRPC error back to a *types.Error. Transport errors carry no OtError detail and
// map to OT_ERROR_FAILED.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return &types.Error{Code: types.OT_ERROR_FAILED, Message: err.Error()}
	}
	for _, d := range st.Details() {
		if c, ok := d.(*wrapperspb.Int32Value); ok {
			return &types.Error{Code: types.OtError(c.GetValue()), Message: st.Message()}
		}
	}
	return &types.Error{Code: types.OT_ERROR_FAILED, Message: st.Message()}
}
