package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/schema"
	"github.com/taskward/taskward/internal/errorz"
	"github.com/taskward/taskward/internal/web/sessions"
)

// shared bundles the request scoped values that are available both
// before and after the target function ran.
type shared struct {
	w    http.ResponseWriter
	r    *http.Request
	sess *sessions.Session
}

// result is the result of a succesful request. It contains all relevant
// data because we can't know in advance what we will need to construct
// a response.
type result[IN, OUT any] struct {
	s    *Server
	w    http.ResponseWriter
	r    *http.Request
	sess *sessions.Session
	in   IN
	out  OUT
}

// handler is a generic HTTP handler that maps requests to target
// function calls and writes the output to the response.
type handler[IN, OUT any] struct {
	srv     *Server
	reqToIn func(shared) (IN, error)
	target  func(context.Context, IN) (OUT, error)
	success func(result[IN, OUT]) error
	fail    func(shared, error)
}

// newHandler creates a HTTP handler that:
// 1. Maps the request to a value of input type IN.
// 2. Calls the target func with that value.
// 3. Writes a response via the onSuccess func.
//
// Errors are written using the onFail func, which defaults to the
// server error handler.
func newHandler[IN, OUT any](srv *Server, targetFunc func(context.Context, IN) (OUT, error)) *handler[IN, OUT] {
	return &handler[IN, OUT]{
		srv: srv,
		reqToIn: func(sh shared) (IN, error) {
			return defaultReqToIn[IN](srv, sh)
		},
		target: targetFunc,
		success: func(result[IN, OUT]) error {
			return nil
		},
		fail: func(sh shared, err error) {
			srv.handleError(sh.w, sh.r, err)
		},
	}
}

// newInputHandler is newHandler for target funcs without output.
func newInputHandler[IN any](srv *Server, targetFunc func(context.Context, IN) error) *handler[IN, struct{}] {
	return newHandler(srv, func(ctx context.Context, in IN) (struct{}, error) {
		return struct{}{}, targetFunc(ctx, in)
	})
}

// request overwrites the function that maps the request to the input type.
func (h *handler[IN, OUT]) request(fn func(shared) (IN, error)) *handler[IN, OUT] {
	h.reqToIn = fn
	return h
}

// onSuccess overwrites the function that writes the response.
func (h *handler[IN, OUT]) onSuccess(fn func(result[IN, OUT]) error) *handler[IN, OUT] {
	h.success = fn
	return h
}

// onFail overwrites the function that handles errors.
func (h *handler[IN, OUT]) onFail(fn func(shared, error)) *handler[IN, OUT] {
	h.fail = fn
	return h
}

func (h *handler[IN, OUT]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		h.srv.handleError(w, r, err)
		return
	}

	sh := shared{w: w, r: r, sess: sess}

	in, err := h.reqToIn(sh)
	if err != nil {
		h.fail(sh, err)
		return
	}

	out, err := h.target(r.Context(), in)
	if err != nil {
		h.fail(sh, err)
		return
	}

	err = h.success(result[IN, OUT]{
		s:    h.srv,
		w:    w,
		r:    r,
		sess: sess,
		in:   in,
		out:  out,
	})
	if err != nil {
		h.srv.handleError(w, r, err)
		return
	}
}

// defaultReqToIn is the default way to map a request to a struct.
func defaultReqToIn[IN any](srv *Server, sh shared) (IN, error) {
	var in IN
	err := sh.r.ParseForm()
	if err != nil {
		return in, err
	}

	// Remove the CSRF token from the form, it won't need to be mapped
	// to any target types and the decoder will fail on it.
	sh.r.Form.Del(csrfTokenField)

	err = srv.decoder.Decode(&in, sh.r.Form)
	return in, decodeError(err)
}

func decodeError(err error) error {
	if err == nil {
		return nil
	}

	var multiErr schema.MultiError
	if errors.As(err, &multiErr) {
		var invalidInput errorz.InvalidInput
		for key, e := range multiErr {
			invalidInput = append(invalidInput, errorz.Keyed{
				Key: key,
				Err: e,
			})
		}

		return invalidInput
	}

	return err
}

func isInvalidInput(err error) bool {
	var invalidInput errorz.InvalidInput
	return errors.As(err, &invalidInput)
}
