// Package lua runs script plugins in a sandboxed gopher-lua state.
//
// A script may define two globals:
//
//	function register_arguments(schema)
//	  schema:string("slack-channel", "#drops", "Channel to notify")
//	  schema:required("slack-channel")
//	end
//
//	function handle(event, options)
//	  log("new file " .. event.name .. " on " .. options["slack-channel"])
//	end
//
// register_arguments contributes command-line options; handle is called once
// per dispatched file. Either may be absent. handle fails by raising an error
// or by returning false (or nil) followed by a message.
//
// Only the base, table, string and math libraries are available. dofile,
// loadfile, load, loadstring, require and module are removed.
package lua
