package cli

import (
	"errors"
	"strings"
	"time"

	"tradeflow/internal/api"
	"tradeflow/internal/client/tradeclient"
	"tradeflow/internal/ledger"
)

type keyInfo struct {
	Address string `json:"address"`
	Key     string `json:"key,omitempty"`
	Saved   bool   `json:"saved"`
}

func keygenCmd(ctx Context, args []string) error {
	fs := newFlagSet("keygen")
	save := fs.Bool("save", true, "store the key in the credentials file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, address, err := ledger.GenerateKey()
	if err != nil {
		return err
	}
	info := keyInfo{Address: address}
	if *save {
		cred, _ := LoadCredentials()
		cred.Key = key
		if err := SaveCredentials(cred); err != nil {
			return err
		}
		info.Saved = true
	} else {
		info.Key = key
	}
	return ctx.write(info)
}

func registerCmd(ctx Context, args []string) error {
	fs := newFlagSet("register")
	user := fs.String("user", "", "user id")
	name := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*user) == "" || strings.TrimSpace(*name) == "" {
		return errors.New("usage: tradectl register --user <id> --name <name>")
	}
	s, err := signer(ctx)
	if err != nil {
		return err
	}
	userID := strings.TrimSpace(*user)
	ts := time.Now().Unix()
	sig, err := s.SignMessage(api.LoginMessage(userID, ts))
	if err != nil {
		return err
	}
	c := &tradeclient.Client{BaseURL: ctx.APIBase}
	u, err := c.Register(ctx.ctx(), api.RegisterRequest{
		UserID:    userID,
		Name:      strings.TrimSpace(*name),
		Address:   s.Address(),
		Timestamp: ts,
		Signature: sig,
	})
	if err != nil {
		return err
	}
	cred, _ := LoadCredentials()
	cred.UserID = userID
	_ = SaveCredentials(cred)
	return ctx.write(u)
}

func loginCmd(ctx Context, args []string) error {
	fs := newFlagSet("login")
	user := fs.String("user", "", "user id (default: the stored one)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cred, _ := LoadCredentials()
	userID := strings.TrimSpace(*user)
	if userID == "" {
		userID = strings.TrimSpace(cred.UserID)
	}
	if userID == "" {
		return errors.New("usage: tradectl login --user <id>")
	}
	s, err := signer(ctx)
	if err != nil {
		return err
	}
	c := &tradeclient.Client{BaseURL: ctx.APIBase}
	resp, err := login(ctx.ctx(), c, userID, s)
	if err != nil {
		return err
	}
	cred.UserID = userID
	cred.Token = resp.Token
	cred.ExpiresAt = resp.ExpiresAt.UTC().Format(time.RFC3339)
	if err := SaveCredentials(cred); err != nil {
		return err
	}
	return ctx.write(resp)
}

func meCmd(ctx Context) error {
	c, err := client(ctx)
	if err != nil {
		return err
	}
	u, err := c.Me(ctx.ctx())
	if err != nil {
		return err
	}
	return ctx.write(u)
}
