// Package protocol implements the Redis Serialization Protocol (RESP)
// used between clients and the server.
//
// Requests are decoded with ReadCommand, which is permissive:
// it only checks the shape of the request and ignores declared bulk lengths.
// Replies are built from Value constructors and encoded by Writer.
//
// Basic usage:
//
//	reader := protocol.NewReader(conn)
//	writer := protocol.NewWriter(conn)
//	for {
//		cmd, err := reader.ReadCommand()
//		if err != nil {
//			break
//		}
//		if cmd.Empty() {
//			continue
//		}
//		writer.WriteValue(protocol.SimpleString("PONG"))
//		writer.Flush()
//	}
//
// ReadReply is a strict decoder for any RESP2 value and is what clients use to
// read replies, including nested arrays.
package protocol
