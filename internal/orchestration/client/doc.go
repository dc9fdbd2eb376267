// Package client provides the provider-agnostic contract between the CLI
// and the coding agents it dispatches to.
//
// This package defines the types that every agent adapter speaks, so the
// command layer can drive an OpenAI-style loop or the remote Devin agent
// through one interface.
//
// Key types:
//   - AgentLoop: Run/Cancel/Terminate lifecycle of one logical client
//   - RemoteSessions: session bookkeeping exposed by remote adapters
//   - ResponseItem: normalized item stream delivered to the UI
//   - InputItem: structured user input (text, images, files)
//   - Params: credentials, approval policy, config and callbacks
//
// Example usage:
//
//	clientType := client.ClientForModel("devin-standard")
//	loop, err := client.NewClient(clientType, client.Params{
//	    APIKey:         os.Getenv("DEVIN_API_KEY"),
//	    ApprovalPolicy: client.PolicyFullAuto,
//	    Config:         client.Config{Model: "devin-standard"},
//	    Callbacks: client.Callbacks{
//	        OnItem:    func(item client.ResponseItem) { fmt.Println(item.Text()) },
//	        OnLoading: func(loading bool) {},
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	_ = loop.Run(ctx, []client.InputItem{client.UserText("Hello")}, "", nil)
package client
