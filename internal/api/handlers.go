package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/querygraph"
	"github.com/roach88/sqlbridge/internal/queryir"
	"github.com/roach88/sqlbridge/internal/request"
	"github.com/roach88/sqlbridge/internal/rows"
)

// maxBodyBytes bounds a request body.
const maxBodyBytes = 4 << 20

// statementRequest is the body of compile and execute requests.
type statementRequest struct {
	Statement json.RawMessage `json:"statement"`
	Args      []any           `json:"args,omitempty"`
}

// CompileResponse is returned by POST /v1/compile/{backend}.
type CompileResponse struct {
	Backend string `json:"backend"`

	// Request and Fingerprint describe a compiled vector request.
	Request     json.RawMessage `json:"request,omitempty"`
	Fingerprint string          `json:"fingerprint,omitempty"`

	// Skeleton, Mutation and Columns describe a compiled graph template.
	Skeleton string   `json:"skeleton,omitempty"`
	Mutation string   `json:"mutation,omitempty"`
	Columns  []string `json:"columns,omitempty"`
}

// ExecuteResponse is returned by POST /v1/execute/{backend}.
type ExecuteResponse struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	RowCount     int64    `json:"rowCount"`
	GeneratedIDs []any    `json:"generatedIds,omitempty"`
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	backend := chi.URLParam(r, "backend")
	_, stmt, ok := s.decodeStatement(w, r, backend)
	if !ok {
		return
	}

	switch backend {
	case BackendVector:
		req, err := s.compileVector(stmt)
		if err != nil {
			writeError(w, err)
			return
		}
		explained, err := ir.MarshalCanonical(request.Explain(req))
		if err != nil {
			writeError(w, err)
			return
		}
		fp, err := request.Fingerprint(req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, CompileResponse{Backend: backend, Request: explained, Fingerprint: fp})
	case BackendGraph:
		tpl, err := s.compileGraph(stmt)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, CompileResponse{
			Backend:  backend,
			Skeleton: tpl.Skeleton(),
			Mutation: tpl.Mutation.String(),
			Columns:  tpl.Columns,
		})
	}
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	backend := chi.URLParam(r, "backend")
	body, stmt, ok := s.decodeStatement(w, r, backend)
	if !ok {
		return
	}

	var (
		res *rows.Result
		err error
	)
	switch backend {
	case BackendVector:
		if s.vector == nil {
			writeProblem(w, http.StatusServiceUnavailable, "BACKEND_ERROR", "vector backend is not configured")
			return
		}
		var req request.Request
		if req, err = s.compileVector(stmt); err == nil {
			res, err = s.vector.Execute(r.Context(), req, body.Args)
		}
	case BackendGraph:
		if s.graph == nil {
			writeProblem(w, http.StatusServiceUnavailable, "BACKEND_ERROR", "graph backend is not configured")
			return
		}
		var tpl *request.Template
		if tpl, err = s.compileGraph(stmt); err == nil {
			res, err = s.graph.Execute(r.Context(), tpl, body.Args)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := executeResponse(res)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) compileVector(stmt queryir.Statement) (request.Request, error) {
	req, err := s.compiler.Compile(stmt)
	s.metrics.ObserveCompile(BackendVector, err)
	return req, err
}

func (s *Server) compileGraph(stmt queryir.Statement) (*request.Template, error) {
	tpl, err := querygraph.Compile(stmt)
	s.metrics.ObserveCompile(BackendGraph, err)
	return tpl, err
}

// decodeStatement validates the backend and parses the body. It writes the
// error response itself and reports false when the request cannot proceed.
func (s *Server) decodeStatement(w http.ResponseWriter, r *http.Request, backend string) (*statementRequest, queryir.Statement, bool) {
	if backend != BackendVector && backend != BackendGraph {
		writeProblem(w, http.StatusNotFound, "UNKNOWN_BACKEND", fmt.Sprintf("unknown backend %q", backend))
		return nil, nil, false
	}

	var body statementRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "BAD_REQUEST", fmt.Sprintf("decode body: %v", err))
		return nil, nil, false
	}
	if len(bytes.TrimSpace(body.Statement)) == 0 {
		writeProblem(w, http.StatusBadRequest, "BAD_REQUEST", "statement is required")
		return nil, nil, false
	}

	stmt, err := decodeStatementDoc(body.Statement)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "BAD_STATEMENT", err.Error())
		return nil, nil, false
	}
	args, err := normalizeArgs(body.Args)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return nil, nil, false
	}
	body.Args = args
	return &body, stmt, true
}

// decodeStatementDoc accepts the statement as a JSON object, which is
// itself a YAML flow mapping, or as a string holding a YAML document.
func decodeStatementDoc(raw json.RawMessage) (queryir.Statement, error) {
	doc := []byte(raw)
	if bytes.HasPrefix(bytes.TrimSpace(doc), []byte(`"`)) {
		var text string
		if err := json.Unmarshal(doc, &text); err != nil {
			return nil, fmt.Errorf("statement: %w", err)
		}
		doc = []byte(text)
	}
	return queryir.DecodeYAML(doc)
}

// normalizeArgs turns decoded JSON numbers into int64 or float64 so that
// integral arguments bind as integers.
func normalizeArgs(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		v, err := normalize(a)
		if err != nil {
			return nil, fmt.Errorf("args[%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func normalize(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		return val.Float64()
	case []any:
		return normalizeArgs(val)
	case map[string]any:
		return nil, fmt.Errorf("objects are not valid arguments")
	default:
		return v, nil
	}
}

func executeResponse(res *rows.Result) (ExecuteResponse, error) {
	out := ExecuteResponse{
		Columns:  res.Columns,
		Rows:     make([][]any, 0, len(res.Rows)),
		RowCount: res.RowCount,
	}
	if out.Columns == nil {
		out.Columns = []string{}
	}
	for i, row := range res.Rows {
		cells := make([]any, len(row))
		for j, v := range row {
			n, err := ir.Native(v)
			if err != nil {
				return ExecuteResponse{}, fmt.Errorf("row %d column %d: %w", i, j, err)
			}
			cells[j] = n
		}
		out.Rows = append(out.Rows, cells)
	}
	for _, id := range res.GeneratedIDs {
		n, err := ir.Native(id)
		if err != nil {
			return ExecuteResponse{}, fmt.Errorf("generated id: %w", err)
		}
		out.GeneratedIDs = append(out.GeneratedIDs, n)
	}
	return out, nil
}
