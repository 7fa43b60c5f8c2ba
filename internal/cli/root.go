package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"tradeflow/internal/api"
	"tradeflow/internal/client/tradeclient"
	"tradeflow/internal/ledger"
	"tradeflow/internal/output"
)

type Context struct {
	APIBase   string
	Token     string
	Key       string
	Moderator bool
	Verbose   bool
	Output    output.Format

	// Base bounds every call; watch runs until it is done.
	Base context.Context
	Out  io.Writer
}

func (c Context) ctx() context.Context {
	if c.Base != nil {
		return c.Base
	}
	return context.Background()
}

func (c Context) out() io.Writer {
	if c.Out != nil {
		return c.Out
	}
	return os.Stdout
}

func (c Context) write(v any) error {
	return output.Write(c.out(), c.Output, v)
}

func (c Context) logger() *zap.Logger {
	if !c.Verbose {
		return nil
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return nil
	}
	return l
}

func Usage(w io.Writer) {
	fmt.Fprint(w, `tradectl <command> <subcommand> [flags]

Global Flags:
  --api-base    Trade server base URL (env: TRADECTL_API_BASE)
  --token       Bearer token (env: TRADECTL_TOKEN)
  --output      json|text (default json)
  --moderator   Act in moderator mode
  --verbose     Log operation steps to stderr

Commands:
  keygen    create a signing key
  register  enroll a user with the signing key
  login     sign the login challenge and store the session token
  me        current user
  trade     list/show/create/txlogs/close/approve-close/reject-close
  stage     add/approve-add/reject-add/close/approve-close/reject-close/
            delete/approve-delete/reject-delete/expiry
  doc       add/approve/reject
  offer     list/create/close
  template  list/create
  notify    list/dismiss
  watch     stream trade events
  api       raw
`)
}

func Dispatch(ctx Context, args []string) error {
	if len(args) == 0 {
		Usage(os.Stderr)
		return errors.New("missing command")
	}
	switch args[0] {
	case "keygen":
		return keygenCmd(ctx, args[1:])
	case "register":
		return registerCmd(ctx, args[1:])
	case "login":
		return loginCmd(ctx, args[1:])
	case "me":
		return meCmd(ctx)
	case "trade":
		return tradeCmd(ctx, args[1:])
	case "stage":
		return stageCmd(ctx, args[1:])
	case "doc":
		return docCmd(ctx, args[1:])
	case "offer":
		return offerCmd(ctx, args[1:])
	case "template":
		return templateCmd(ctx, args[1:])
	case "notify":
		return notifyCmd(ctx, args[1:])
	case "watch":
		return watchCmd(ctx, args[1:])
	case "api":
		return apiCmd(ctx, args[1:])
	case "help", "-h", "--help":
		Usage(os.Stdout)
		return nil
	default:
		Usage(os.Stderr)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("tradectl "+name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// signer returns the local ledger signer: the --key/TRADECTL_KEY value when
// set, the stored key otherwise.
func signer(ctx Context) (*ledger.LocalSigner, error) {
	key := strings.TrimSpace(ctx.Key)
	if key == "" {
		if cred, err := LoadCredentials(); err == nil {
			key = strings.TrimSpace(cred.Key)
		}
	}
	if key == "" {
		return nil, errors.New("no signing key; run: tradectl keygen or set TRADECTL_KEY")
	}
	return ledger.NewLocalSigner(key)
}

const refreshSkew = 2 * time.Minute

// ensureToken returns the bearer token to use. An explicit token is trusted
// as is; the stored one is renewed by signing a new login challenge when it
// is missing or about to expire.
func ensureToken(ctx Context) (string, error) {
	if strings.TrimSpace(ctx.Token) != "" {
		return strings.TrimSpace(ctx.Token), nil
	}

	cred, err := LoadCredentials()
	if err != nil {
		return "", errors.New("missing credentials; run: tradectl login --user <id>")
	}

	tok := strings.TrimSpace(cred.Token)
	exp, hasExp := cred.ExpiresAtTime()
	if tok != "" && !(hasExp && time.Until(exp) < refreshSkew) {
		return tok, nil
	}
	if strings.TrimSpace(cred.UserID) == "" {
		return "", errors.New("token expired/missing; run: tradectl login --user <id>")
	}

	s, err := signer(ctx)
	if err != nil {
		return "", err
	}
	c := &tradeclient.Client{BaseURL: ctx.APIBase}
	resp, err := login(ctx.ctx(), c, cred.UserID, s)
	if err != nil {
		return "", err
	}
	cred.Token = resp.Token
	cred.ExpiresAt = resp.ExpiresAt.UTC().Format(time.RFC3339)
	_ = SaveCredentials(cred)
	return cred.Token, nil
}

func login(ctx context.Context, c *tradeclient.Client, userID string, s *ledger.LocalSigner) (api.LoginResponse, error) {
	ts := time.Now().Unix()
	sig, err := s.SignMessage(api.LoginMessage(userID, ts))
	if err != nil {
		return api.LoginResponse{}, err
	}
	return c.Login(ctx, api.LoginRequest{UserID: userID, Timestamp: ts, Signature: sig})
}

// client returns an authenticated trade server client.
func client(ctx Context) (*tradeclient.Client, error) {
	tok, err := ensureToken(ctx)
	if err != nil {
		return nil, err
	}
	return &tradeclient.Client{BaseURL: ctx.APIBase, Token: tok, Moderator: ctx.Moderator}, nil
}
