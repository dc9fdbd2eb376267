package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubLoop struct {
	params   Params
	runs     int
	canceled int
}

func (s *stubLoop) Type() ClientType { return ClientMock }

func (s *stubLoop) Run(_ context.Context, _ []InputItem, _ string, _ []string) error {
	s.runs++
	return nil
}

func (s *stubLoop) Cancel()    { s.canceled++ }
func (s *stubLoop) Terminate() {}

func registerStub(t *testing.T) {
	t.Helper()
	RegisterClient(ClientMock, func(p Params) (AgentLoop, error) {
		return &stubLoop{params: p}, nil
	})
	t.Cleanup(func() { unregisterClient(ClientMock) })
}

func TestClientType_AllConstants(t *testing.T) {
	require.Equal(t, ClientType("devin"), ClientDevin)
	require.Equal(t, ClientType("codex"), ClientCodex)
	require.Equal(t, ClientType("mock"), ClientMock)
}

func TestNewClient_Unknown(t *testing.T) {
	_, err := NewClient("nope", Params{})
	require.ErrorIs(t, err, ErrUnknownClientType)
	require.Contains(t, err.Error(), "nope")
}

func TestNewClient_PassesParams(t *testing.T) {
	registerStub(t)

	loop, err := NewClient(ClientMock, Params{APIKey: "k", ApprovalPolicy: PolicySuggest})
	require.NoError(t, err)
	stub := loop.(*stubLoop)
	require.Equal(t, "k", stub.params.APIKey)
	require.Equal(t, PolicySuggest, stub.params.ApprovalPolicy)
}

func TestRegisteredClients_Sorted(t *testing.T) {
	registerStub(t)
	RegisterClient("aaa", func(Params) (AgentLoop, error) { return &stubLoop{}, nil })
	t.Cleanup(func() { unregisterClient("aaa") })

	types := RegisteredClients()
	require.Contains(t, types, ClientMock)
	for i := 1; i < len(types); i++ {
		require.Less(t, types[i-1], types[i])
	}
	require.True(t, IsRegistered("aaa"))
	require.False(t, IsRegistered("zzz"))
}

func TestCallbacks_NilSafe(t *testing.T) {
	var cb Callbacks
	require.NotPanics(t, func() {
		cb.Item(NewSystemText(KindNotice, "x"))
		cb.Loading(true)
		cb.LastResponseID("id")
	})
}

func TestCallbacks_Forward(t *testing.T) {
	var items []ResponseItem
	var loading []bool
	var ids []string
	cb := Callbacks{
		OnItem:           func(i ResponseItem) { items = append(items, i) },
		OnLoading:        func(l bool) { loading = append(loading, l) },
		OnLastResponseID: func(id string) { ids = append(ids, id) },
	}

	cb.Item(NewAssistantText(KindOutput, "hi"))
	cb.Loading(true)
	cb.Loading(false)
	cb.LastResponseID("s1")

	require.Len(t, items, 1)
	require.Equal(t, []bool{true, false}, loading)
	require.Equal(t, []string{"s1"}, ids)
}

func TestResponseItem_Constructors(t *testing.T) {
	a := NewAssistantText(KindOutput, "hello")
	b := NewAssistantText(KindOutput, "hello")
	require.NotEqual(t, a.ID, b.ID, "every emission gets a fresh id")
	require.Equal(t, "message", a.Type)
	require.Equal(t, RoleAssistant, a.Role)
	require.Equal(t, PartOutputText, a.Content[0].Type)
	require.Equal(t, "hello", a.Text())

	s := NewSystemText(KindError, "boom")
	require.Equal(t, RoleSystem, s.Role)
	require.Equal(t, PartOutputText, s.Content[0].Type)
	require.Equal(t, KindError, s.Kind)
}

func TestResponseItem_TextAndFiles(t *testing.T) {
	item := ResponseItem{Content: []ContentPart{
		{Type: PartOutputText, Text: "line one"},
		{Type: PartFile, URL: "https://x/1", Filename: "a.txt"},
		{Type: PartOutputText, Text: "line two"},
	}}
	require.Equal(t, "line one\nline two", item.Text())
	files := item.Files()
	require.Len(t, files, 1)
	require.Equal(t, "a.txt", files[0].Filename)
}

func TestRunState_String(t *testing.T) {
	tests := []struct {
		state    RunState
		want     string
		terminal bool
	}{
		{StateIdle, "idle", false},
		{StateStarting, "starting", false},
		{StatePolling, "polling", false},
		{StateCompleted, "completed", true},
		{StateFailed, "failed", true},
		{StateCanceled, "canceled", true},
		{RunState(99), "unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, tt.state.String())
			require.Equal(t, tt.terminal, tt.state.IsTerminal())
		})
	}
}

func TestSessionStatus_IsTerminal(t *testing.T) {
	require.True(t, SessionCompleted.IsTerminal())
	require.True(t, SessionFailed.IsTerminal())
	require.False(t, SessionCreated.IsTerminal())
	require.False(t, SessionRunning.IsTerminal())
	require.False(t, SessionStatus("blocked").IsTerminal())
}

func TestParseApprovalPolicy(t *testing.T) {
	for _, p := range ApprovalPolicies {
		got, err := ParseApprovalPolicy(string(p))
		require.NoError(t, err)
		require.Equal(t, p, got)
	}

	got, err := ParseApprovalPolicy("")
	require.NoError(t, err)
	require.Equal(t, PolicyFullAuto, got)

	_, err = ParseApprovalPolicy("yolo")
	require.Error(t, err)
}
