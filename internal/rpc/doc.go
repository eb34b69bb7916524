// Package rpc defines the WorksheetService gRPC contract shared by the
// journal client and server.
//
// Messages are well-known protobuf types (structpb, wrapperspb, emptypb)
// so that worksheets, whose application fields are open-ended, travel as
// plain documents. The service descriptor, server registration and client
// stub below follow the shape of protoc-gen-go-grpc output.
package rpc
