package session

import (
	"context"
	"errors"

	"github.com/secmsg/redblack-go/pkg/redblack"
)

// HandlerFunc handles one request. The result must encode as a JSON object
// (nil sends {}). Returning a *redblack.RPCError sends that error response;
// any other error, or a result that is not an object, is reported as
// CodeInternalError.
type HandlerFunc func(ctx context.Context, req redblack.Message) (any, error)

// Serve answers requests until ctx is done or a frame is rejected. Every
// rejected frame ends the loop: security failures, malformed envelopes and
// foreign signers all mean the connection should be dropped. Hello and
// response messages sent by the client are answered with CodeInvalidRequest.
func (s *Session) Serve(ctx context.Context, handle HandlerFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		req, err := s.Receive(ctx)
		if err != nil {
			return err
		}

		if req.Kind != redblack.KindRequest {
			if err := s.ReplyError(ctx, req.ID, redblack.CodeInvalidRequest, "expected a request"); err != nil {
				return err
			}
			continue
		}

		result, herr := handle(ctx, req)
		if herr != nil {
			var rpcErr *redblack.RPCError
			if !errors.As(herr, &rpcErr) {
				s.logger.Error(ctx, "handler failed", "method", req.Method, "id", req.ID, "error", herr)
				rpcErr = &redblack.RPCError{Code: redblack.CodeInternalError, Message: "internal error"}
			}
			if err := s.ReplyError(ctx, req.ID, rpcErr.Code, rpcErr.Message); err != nil {
				return err
			}
			continue
		}

		resp, err := redblack.NewResponse(req.ID, result)
		if err != nil {
			s.logger.Error(ctx, "handler result rejected", "method", req.Method, "id", req.ID, "error", err)
			resp = redblack.NewError(redblack.CodeInternalError, "internal error", req.ID)
		}
		if err := s.Send(ctx, resp); err != nil {
			return err
		}
	}
}
