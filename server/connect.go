package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// QueryProcedure is the Connect procedure path of the query RPC.
const QueryProcedure = "/tabula.v1.QueryService/Query"

// connectHandler builds the Connect unary handler for QueryProcedure. The
// request Struct has the shape of QueryRequest; the response Struct has the
// shape of QueryResponse.
func (s *Server) connectHandler() (string, http.Handler) {
	return QueryProcedure, connect.NewUnaryHandler(QueryProcedure, s.connectQuery)
}

func (s *Server) connectQuery(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	var qr QueryRequest
	if err := convert(req.Msg.AsMap(), &qr); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	resp, err := s.runQuery(ctx, qr)
	if err != nil {
		return nil, connectError(err)
	}

	var fields map[string]any
	if err := convert(resp, &fields); err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// convert re-decodes in through its JSON form into out.
func convert(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}
