package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/ohirun/internal/commands"
	"github.com/edgard/ohirun/internal/database"
	"github.com/edgard/ohirun/internal/dispatch"
)

type apiCall struct {
	method string
	chatID string
	scope  int64
	text   string
}

// fakeAPI is a minimal Bot API server. Command lists are kept per chat scope.
type fakeAPI struct {
	url       string
	mu        sync.Mutex
	calls     []apiCall
	commands  map[int64][]models.BotCommand
	forbidden map[string]bool
}

func newFakeAPI(t *testing.T) (*fakeAPI, *bot.Bot) {
	t.Helper()

	api := &fakeAPI{commands: make(map[int64][]models.BotCommand), forbidden: make(map[string]bool)}
	srv := httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(srv.Close)
	api.url = srv.URL

	b, err := NewTelegramBot("123456789:test-token", nil, bot.WithServerURL(srv.URL), bot.WithSkipGetMe())
	if err != nil {
		t.Fatalf("NewTelegramBot() error = %v", err)
	}
	return api, b
}

// params reads request fields from a multipart form or a JSON body. Object values are
// returned as raw JSON.
func params(r *http.Request) map[string]string {
	out := make(map[string]string)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var raw map[string]json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&raw)
		for k, v := range raw {
			var s string
			if json.Unmarshal(v, &s) == nil {
				out[k] = s
			} else {
				out[k] = string(v)
			}
		}
		return out
	}

	if err := r.ParseMultipartForm(1 << 20); err != nil {
		_ = r.ParseForm()
	}
	for k := range r.Form {
		out[k] = r.FormValue(k)
	}
	if r.MultipartForm != nil {
		for k := range r.MultipartForm.Value {
			out[k] = r.FormValue(k)
		}
	}
	return out
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	p := params(r)
	method := path.Base(r.URL.Path)
	chatID := p["chat_id"]
	scope := scopeChatID(p["scope"])

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, apiCall{method: method, chatID: chatID, scope: scope, text: p["text"]})

	if f.forbidden[method+":"+chatID] || f.forbidden[method+":"+strconv.FormatInt(scope, 10)] {
		fmt.Fprint(w, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`)
		return
	}

	var result any = true
	switch method {
	case "getMyCommands":
		result = f.commands[scope]
		if result == nil {
			result = []models.BotCommand{}
		}
	case "setMyCommands":
		var cmds []models.BotCommand
		_ = json.Unmarshal([]byte(p["commands"]), &cmds)
		f.commands[scope] = cmds
	case "sendMessage":
		id, _ := strconv.ParseInt(chatID, 10, 64)
		result = map[string]any{"message_id": len(f.calls), "date": 0, "chat": map[string]any{"id": id, "type": "private"}}
	}

	body, _ := json.Marshal(map[string]any{"ok": true, "result": result})
	_, _ = w.Write(body)
}

// scopeChatID returns the chat of a chat scope, or 0 for the default scope.
func scopeChatID(raw string) int64 {
	var scope struct {
		ChatID json.Number `json:"chat_id"`
	}
	_ = json.Unmarshal([]byte(raw), &scope)
	id, _ := scope.ChatID.Int64()
	return id
}

func (f *fakeAPI) sent(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) commandNames(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, c := range f.commands[chatID] {
		names = append(names, c.Command)
	}
	return names
}

type memoryChats struct {
	mu    sync.Mutex
	chats map[int64]database.Chat
}

func newMemoryChats(ids ...int64) *memoryChats {
	m := &memoryChats{chats: make(map[int64]database.Chat)}
	for _, id := range ids {
		m.chats[id] = database.Chat{ID: id, IsActive: true}
	}
	return m
}

func (m *memoryChats) UpsertChat(_ context.Context, chat *database.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat.IsActive = true
	m.chats[chat.ID] = *chat
	return nil
}

func (m *memoryChats) DeactivateChat(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.chats[chatID]
	c.IsActive = false
	m.chats[chatID] = c
	return nil
}

func (m *memoryChats) ListActiveChats(context.Context) ([]database.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Chat
	for _, c := range m.chats {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memoryChats) active(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chats[id].IsActive
}

func testRegistry(t *testing.T) *commands.Registry {
	t.Helper()

	echo := func(ctx context.Context, inv *commands.Invocation, r commands.Responder) error {
		text, _ := inv.String("text")
		return r.Respond(ctx, text, false)
	}
	reg, err := commands.NewRegistry(
		commands.Command{
			Name:        "echo",
			Description: "繰り返します",
			Options:     []commands.Option{{Name: "text", Description: "テキスト", Type: commands.TypeString, Required: true}},
			Handler:     echo,
		},
		commands.Command{
			Name:        "link",
			Description: "店舗と食べ物を関連付けます",
			Options: []commands.Option{
				{Name: "storeid", Description: "店舗ID", Type: commands.TypeInteger, Required: true, MinValue: commands.Bound(1)},
				{Name: "mealid", Description: "食べ物ID", Type: commands.TypeInteger, Required: true, MinValue: commands.Bound(1)},
			},
			Handler: func(context.Context, *commands.Invocation, commands.Responder) error { return nil },
		},
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

type harness struct {
	api    *fakeAPI
	bot    *bot.Bot
	chats  *memoryChats
	router *Router
}

func newHarness(t *testing.T, chatIDs ...int64) *harness {
	t.Helper()

	api, b := newFakeAPI(t)
	chats := newMemoryChats(chatIDs...)
	d := dispatch.New(testRegistry(t), NewGateway(b, "123456789:test-token", chats, nil, WithAPIServer(api.url)), dispatch.Config{
		UnknownCommandMsg: "unknown command",
		ErrorGeneralMsg:   "general error",
	}, nil)
	router := NewRouter(d, chats, "❌ 入力エラー: %s", nil)
	if err := RegisterHandlers(b, router); err != nil {
		t.Fatalf("RegisterHandlers() error = %v", err)
	}
	return &harness{api: api, bot: b, chats: chats, router: router}
}

func (h *harness) message(chatID int64, chatType models.ChatType, text string) *models.Update {
	return &models.Update{
		ID: 1,
		Message: &models.Message{
			ID:   10,
			From: &models.User{ID: 77, Username: "taro"},
			Chat: models.Chat{ID: chatID, Type: chatType, Title: "lunch club"},
			Text: text,
		},
	}
}

func TestGateway_RegistersOnlyMissingCommands(t *testing.T) {
	t.Parallel()

	h := newHarness(t, -100)
	h.api.commands[-100] = []models.BotCommand{{Command: "echo", Description: "繰り返します"}}
	h.api.commands[0] = []models.BotCommand{{Command: "global", Description: "全体"}}

	summary, err := h.router.Ready(context.Background(), &models.User{ID: 1, Username: "ohirun_bot"})
	if err != nil {
		t.Fatalf("Ready() error = %v", err)
	}
	if summary.Registered != 1 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want 1 registered", summary)
	}
	if got, want := h.api.commandNames(-100), []string{"echo", "link"}; !reflect.DeepEqual(got, want) {
		t.Errorf("chat commands = %v, want %v", got, want)
	}

	summary, err = h.router.Ready(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Ready() error = %v", err)
	}
	if summary.Registered != 0 {
		t.Errorf("second registration registered %d commands", summary.Registered)
	}
	if n := len(h.api.sent("setMyCommands")); n != 1 {
		t.Errorf("setMyCommands calls = %d, want 1", n)
	}
	for _, c := range h.api.sent("getMyCommands") {
		if c.scope != -100 {
			t.Errorf("getMyCommands read scope %d, want chat -100", c.scope)
		}
	}
	if got := h.api.commandNames(0); !reflect.DeepEqual(got, []string{"global"}) {
		t.Errorf("default scope commands = %v, want untouched", got)
	}
}

func TestGateway_ScopedReadErrors(t *testing.T) {
	t.Parallel()

	const token = "123456789:secret-token"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	}))
	t.Cleanup(srv.Close)

	chats := newMemoryChats(-500)
	g := NewGateway(nil, token, chats, nil, WithAPIServer(srv.URL+"/"))
	if _, err := g.RegisteredCommands(context.Background(), -500); err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("RegisteredCommands() error = %v, want api error", err)
	}
	if !chats.active(-500) {
		t.Error("chat deactivated on a non-forbidden error")
	}

	srv.Close()
	_, err := g.RegisteredCommands(context.Background(), -500)
	if err == nil {
		t.Fatal("RegisteredCommands() succeeded against a closed server")
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Errorf("error leaks the bot token: %v", err)
	}
}

func TestGateway_ForbiddenChatIsDeactivated(t *testing.T) {
	t.Parallel()

	h := newHarness(t, -100, -200)
	h.api.forbidden["getMyCommands:-200"] = true

	summary, err := h.router.Ready(context.Background(), nil)
	if err != nil {
		t.Fatalf("Ready() error = %v", err)
	}
	if summary.Failed != 1 || summary.Registered != 2 {
		t.Errorf("summary = %+v, want 2 registered and 1 failed", summary)
	}
	if h.chats.active(-200) {
		t.Error("forbidden chat still active")
	}
	if !h.chats.active(-100) {
		t.Error("healthy chat deactivated")
	}
}

func TestRouter_DispatchesCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.router.Handle(context.Background(), h.bot, h.message(-300, models.ChatTypeGroup, `/echo "hello  world"`))

	msgs := h.api.sent("sendMessage")
	if len(msgs) != 1 || msgs[0].chatID != "-300" || msgs[0].text != "hello  world" {
		t.Errorf("sendMessage calls = %+v", msgs)
	}
	if len(h.api.sent("sendChatAction")) != 1 {
		t.Error("invocation was not acknowledged")
	}
	if !h.chats.active(-300) {
		t.Error("chat not recorded")
	}
	if got := h.api.commandNames(-300); len(got) != 2 {
		t.Errorf("commands registered in new chat = %v", got)
	}
}

func TestRouter_InvalidArgumentsReplyPrivately(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		forbidDM bool
		wantChat []string
	}{
		{name: "direct message", wantChat: []string{"77"}},
		{name: "fallback to chat", forbidDM: true, wantChat: []string{"77", "-300"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			h.api.forbidden["sendMessage:77"] = tt.forbidDM
			h.router.Handle(context.Background(), h.bot, h.message(-300, models.ChatTypeSupergroup, "/link x 1"))

			msgs := h.api.sent("sendMessage")
			var chats []string
			for _, m := range msgs {
				chats = append(chats, m.chatID)
			}
			if !reflect.DeepEqual(chats, tt.wantChat) {
				t.Fatalf("sendMessage chats = %v, want %v", chats, tt.wantChat)
			}
			last := msgs[len(msgs)-1].text
			if !strings.Contains(last, "❌ 入力エラー: 店舗IDは整数で指定してください。") || !strings.Contains(last, "使い方: /link <storeid> <mealid>") {
				t.Errorf("input error text = %q", last)
			}
			if len(h.api.sent("sendChatAction")) != 0 {
				t.Error("rejected invocation was acknowledged")
			}
		})
	}
}

func TestRouter_UnknownCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		chatID    int64
		chatType  models.ChatType
		text      string
		wantReply bool
	}{
		{name: "private chat", chatID: 77, chatType: models.ChatTypePrivate, text: "/nope", wantReply: true},
		{name: "group addressed to this bot", chatID: -300, chatType: models.ChatTypeGroup, text: "/nope@ohirun_bot", wantReply: true},
		{name: "group unaddressed", chatID: -300, chatType: models.ChatTypeGroup, text: "/nope", wantReply: false},
		{name: "supergroup unaddressed", chatID: -300, chatType: models.ChatTypeSupergroup, text: "/weather tokyo", wantReply: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			if _, err := h.router.Ready(context.Background(), &models.User{ID: 1, Username: "ohirun_bot"}); err != nil {
				t.Fatalf("Ready() error = %v", err)
			}
			h.router.Handle(context.Background(), h.bot, h.message(tt.chatID, tt.chatType, tt.text))

			var replies []apiCall
			for _, m := range h.api.sent("sendMessage") {
				if m.text == "unknown command" {
					replies = append(replies, m)
				}
			}
			if tt.wantReply && len(replies) != 1 {
				t.Errorf("unknown command replies = %+v, want 1", replies)
			}
			if !tt.wantReply && len(replies) != 0 {
				t.Errorf("unknown command replies = %+v, want none", replies)
			}
		})
	}
}

func TestRouter_IgnoresOtherBotsAndPlainText(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if _, err := h.router.Ready(context.Background(), &models.User{ID: 1, Username: "ohirun_bot"}); err != nil {
		t.Fatalf("Ready() error = %v", err)
	}

	h.router.Handle(context.Background(), h.bot, h.message(-300, models.ChatTypeGroup, "/echo@other_bot hi"))
	h.router.Handle(context.Background(), h.bot, h.message(-300, models.ChatTypeGroup, "お昼どうする？"))
	if n := len(h.api.sent("sendMessage")); n != 0 {
		t.Errorf("sendMessage calls = %d, want 0", n)
	}

	h.router.Handle(context.Background(), h.bot, h.message(-300, models.ChatTypeGroup, "/ECHO@Ohirun_Bot hi"))
	if msgs := h.api.sent("sendMessage"); len(msgs) != 1 || msgs[0].text != "hi" {
		t.Errorf("sendMessage calls = %+v", msgs)
	}
}

func TestRouter_Membership(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	update := func(status models.ChatMemberType) *models.Update {
		return &models.Update{MyChatMember: &models.ChatMemberUpdated{
			Chat:          models.Chat{ID: -400, Type: models.ChatTypeGroup, Title: "新しいグループ"},
			NewChatMember: models.ChatMember{Type: status},
		}}
	}

	h.router.Handle(context.Background(), h.bot, update(models.ChatMemberTypeMember))
	if !h.chats.active(-400) {
		t.Fatal("joined chat not recorded")
	}
	if got := h.api.commandNames(-400); len(got) != 2 {
		t.Errorf("commands registered on join = %v", got)
	}

	h.router.Handle(context.Background(), h.bot, update(models.ChatMemberTypeLeft))
	if h.chats.active(-400) {
		t.Error("left chat still active")
	}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	r := NewRouter(nil, nil, "%s", nil)
	r.username = "ohirun_bot"

	tests := []struct {
		text     string
		wantName string
		wantRest string
		wantOK   bool
	}{
		{text: "/ohiru", wantName: "ohiru", wantOK: true},
		{text: "/ohiru type 1", wantName: "ohiru", wantRest: "type 1", wantOK: true},
		{text: "/Ohiru@ohirun_bot  type 2 ", wantName: "ohiru", wantRest: "type 2", wantOK: true},
		{text: "/add\nstore さくら 和食", wantName: "add", wantRest: "store さくら 和食", wantOK: true},
		{text: "/ohiru@someone_else", wantOK: false},
		{text: "ohiru", wantOK: false},
		{text: "/", wantOK: false},
		{text: "", wantOK: false},
	}

	for _, tt := range tests {
		name, rest, addressed, ok := r.parseCommand(tt.text)
		if ok != tt.wantOK || name != tt.wantName || rest != tt.wantRest {
			t.Errorf("parseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)", tt.text, name, rest, ok, tt.wantName, tt.wantRest, tt.wantOK)
		}
		if ok && addressed != strings.Contains(tt.text, "@") {
			t.Errorf("parseCommand(%q) addressed = %v", tt.text, addressed)
		}
	}
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{name: "fits", text: "short", limit: 10, want: []string{"short"}},
		{name: "splits on lines", text: "aaaa\nbbbb\ncccc", limit: 10, want: []string{"aaaa\nbbbb", "cccc"}},
		{name: "hard split long line", text: "あいうえおかきくけこさ", limit: 4, want: []string{"あいうえ", "おかきく", "けこさ"}},
		{name: "drops blank parts", text: "abcd\n\n\nefgh", limit: 5, want: []string{"abcd", "efgh"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := splitMessage(tt.text, tt.limit); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
