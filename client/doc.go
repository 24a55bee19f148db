// Package client provides a small Go client for filed's JSON-RPC tool
// surface. It mirrors what an MCP-speaking caller does over HTTP while
// exposing plain Go methods that are easy to embed in scripts and tools.
//
// Copyright (C) 2025 Michel Blomgren <https://pkt.systems>
//
// # Quick start
//
//	ctx := context.Background()
//	cli, err := client.New("http://127.0.0.1:8082",
//	    client.WithAPIKey(os.Getenv("FILED_WRITE_KEY")))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cli.Close()
//
//	if _, err := cli.CallTool(ctx, "create_file", map[string]any{
//	    "file_path": "notes/todo.md",
//	    "content":   "- ship it\n",
//	}); err != nil {
//	    log.Fatal(err)
//	}
//	text, err := cli.CallTool(ctx, "read_file", map[string]any{
//	    "file_path": "notes/todo.md",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(text)
//
// Tool failures come back as *RPCError carrying the JSON-RPC error code
// the server produced; inspect them with errors.As. The zero-key client
// works against servers running without authentication.
package client
