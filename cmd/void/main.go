package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"xdao.co/void/envelope"
	"xdao.co/void/ledger"
	"xdao.co/void/protocol"
	"xdao.co/void/seal"
	"xdao.co/void/storage"
	"xdao.co/void/storage/localfs"
	"xdao.co/void/storage/registry"
	"xdao.co/void/wallet"

	_ "xdao.co/void/storage/remote"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "stamp":
		return cmdStamp(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "receipt":
		return cmdReceipt(args[1:], out, errOut)
	case "org":
		return cmdOrg(args[1:], out, errOut)
	case "submit":
		return cmdSubmit(args[1:], out, errOut)
	case "inbox":
		return cmdInbox(args[1:], out, errOut)
	case "send":
		return cmdSend(args[1:], out, errOut)
	case "read":
		return cmdRead(args[1:], out, errOut)
	case "burn":
		return cmdBurn(args[1:], out, errOut)
	case "vouch":
		return cmdVouch(args[1:], out, errOut)
	case "unvouch":
		return cmdUnvouch(args[1:], out, errOut)
	case "vouched":
		return cmdVouched(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "void: content commitments, sealed drop boxes, and encrypted messages")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  void key init --name <name> [--seed-hex <64hex>]")
	fmt.Fprintln(w, "  void key list")
	fmt.Fprintln(w, "  void key identity [--key <name>]")
	fmt.Fprintln(w, "  void stamp <file>")
	fmt.Fprintln(w, "  void verify (<file> | --fingerprint <64hex>)")
	fmt.Fprintln(w, "  void receipt --fingerprint <64hex>")
	fmt.Fprintln(w, "  void org create --slug <slug> [--name <name>] [--description <text>]")
	fmt.Fprintln(w, "  void org show --slug <slug>")
	fmt.Fprintln(w, "  void org close --slug <slug>")
	fmt.Fprintln(w, "  void org read --slug <slug> --id <n> --key-hex <64hex>")
	fmt.Fprintln(w, "  void submit --slug <slug> (--message <text> | --message-file <file>) [--attach <file> ...]")
	fmt.Fprintln(w, "  void inbox activate")
	fmt.Fprintln(w, "  void send --to <identity> (--message <text> | --message-file <file>) [--attach <file> ...] [--burn-after-reading]")
	fmt.Fprintln(w, "  void read --id <n> [--save-dir <dir>]")
	fmt.Fprintln(w, "  void burn --id <n>")
	fmt.Fprintln(w, "  void vouch --fingerprint <64hex>")
	fmt.Fprintln(w, "  void unvouch --fingerprint <64hex>")
	fmt.Fprintln(w, "  void vouched --of <identity> --fingerprint <64hex>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - keys live under ~/.void/keys/<name> (0600 seed files); --key selects one (default 'default')")
	fmt.Fprintln(w, "  - the ledger lives under ~/.void/ledger; --ledger overrides")
	fmt.Fprintln(w, "  - sealed blobs go to the --backend store (default localfs); with --backend=grpc,")
	fmt.Fprintln(w, "    writes fall back to the local store while the daemon is unreachable")
	fmt.Fprintln(w, "  - 'org create' prints the drop-box private key exactly once; it is never stored")
	fmt.Fprintln(w, "  - 'inbox activate' needs no key backup: the inbox key re-derives from your wallet")
}

// commonFlags are shared by every subcommand that touches state.
type commonFlags struct {
	keyName string
	keysDir string
	ledger  string
	backend string
	local   string
}

func registerCommon(fs *flag.FlagSet, cf *commonFlags) {
	fs.StringVar(&cf.keyName, "key", "default", "Wallet key name")
	fs.StringVar(&cf.keysDir, "keys-dir", "", "Key store directory (default ~/.void/keys)")
	fs.StringVar(&cf.ledger, "ledger", "", "Ledger directory (default ~/.void/ledger)")
	fs.StringVar(&cf.backend, "backend", "localfs", "Blob store backend name")
	fs.StringVar(&cf.local, "local-root", "", "Local fallback blob directory (default ~/.void/blobs)")
	registry.RegisterFlags(fs, registry.UsageCLI)
}

func voidDir(sub string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".void", sub), nil
}

type env struct {
	client *protocol.Client
	signer *wallet.KeyPair
	close  func()
}

func openEnv(cf *commonFlags, errOut io.Writer) (*env, int) {
	dir := cf.keysDir
	if dir == "" {
		var err error
		dir, err = wallet.DefaultDirectory()
		if err != nil {
			fmt.Fprintf(errOut, "keys: %v\n", err)
			return nil, 1
		}
	}
	ks, err := wallet.OpenKeyStore(dir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return nil, 1
	}
	signer, err := ks.Load(cf.keyName)
	if err != nil {
		fmt.Fprintf(errOut, "load key %q: %v (run 'void key init --name %s')\n", cf.keyName, err, cf.keyName)
		return nil, 1
	}

	ledgerDir := cf.ledger
	if ledgerDir == "" {
		ledgerDir, err = voidDir("ledger")
		if err != nil {
			fmt.Fprintf(errOut, "ledger: %v\n", err)
			return nil, 1
		}
	}
	l, err := ledger.OpenLevelDB(ledgerDir)
	if err != nil {
		fmt.Fprintf(errOut, "open ledger: %v\n", err)
		return nil, 1
	}

	blobs, closeFn, err := registry.Open(cf.backend, registry.UsageCLI)
	if err != nil {
		_ = l.Close()
		fmt.Fprintf(errOut, "open backend %q: %v\n", cf.backend, err)
		return nil, 1
	}
	if cf.backend != "localfs" {
		localRoot := cf.local
		if localRoot == "" {
			localRoot, err = voidDir("blobs")
			if err != nil {
				_ = l.Close()
				fmt.Fprintf(errOut, "local root: %v\n", err)
				return nil, 1
			}
		}
		local, lerr := localfs.New(localRoot)
		if lerr != nil {
			_ = l.Close()
			fmt.Fprintf(errOut, "open local fallback: %v\n", lerr)
			return nil, 1
		}
		blobs = storage.Fallback{Remote: blobs, Local: local}
	}

	e := &env{
		client: protocol.New(signer, l, blobs),
		signer: signer,
		close: func() {
			if closeFn != nil {
				_ = closeFn()
			}
			_ = l.Close()
		},
	}
	return e, 0
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: void key <init|list|identity> ...")
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "identity":
		return cmdKeyIdentity(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n", args[0])
		return 2
	}
}

func openKeyStore(dir string, errOut io.Writer) (*wallet.KeyStore, int) {
	if dir == "" {
		var err error
		dir, err = wallet.DefaultDirectory()
		if err != nil {
			fmt.Fprintf(errOut, "keys: %v\n", err)
			return nil, 1
		}
	}
	ks, err := wallet.OpenKeyStore(dir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return nil, 1
	}
	return ks, 0
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var name, seedHex, keysDir string
	fs.StringVar(&name, "name", "", "Key name (directory under ~/.void/keys)")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional ed25519 seed as 64 hex chars (for reproducible demos)")
	fs.StringVar(&keysDir, "keys-dir", "", "Key store directory (default ~/.void/keys)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := wallet.CheckName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	ks, code := openKeyStore(keysDir, errOut)
	if code != 0 {
		return code
	}

	var kp *wallet.KeyPair
	var err error
	if seedHex != "" {
		seed, derr := wallet.ParseSeedHex(seedHex)
		if derr != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", derr)
			return 2
		}
		kp, err = ks.Import(name, seed)
	} else {
		kp, err = ks.Create(name)
	}
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created key: %s\n", kp.Identity())
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var keysDir string
	fs.StringVar(&keysDir, "keys-dir", "", "Key store directory (default ~/.void/keys)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, code := openKeyStore(keysDir, errOut)
	if code != 0 {
		return code
	}
	names, err := ks.List()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, n := range names {
		kp, lerr := ks.Load(n)
		if lerr != nil {
			fmt.Fprintf(out, "%s\t(unreadable: %v)\n", n, lerr)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", n, kp.Identity())
	}
	return 0
}

func cmdKeyIdentity(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key identity", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var name, keysDir string
	fs.StringVar(&name, "key", "default", "Wallet key name")
	fs.StringVar(&keysDir, "keys-dir", "", "Key store directory (default ~/.void/keys)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, code := openKeyStore(keysDir, errOut)
	if code != 0 {
		return code
	}
	kp, err := ks.Load(name)
	if err != nil {
		fmt.Fprintf(errOut, "load key %q: %v\n", name, err)
		return 1
	}
	_, _ = fmt.Fprintln(out, kp.Identity())
	return 0
}

func cmdStamp(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("stamp", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var cf commonFlags
	registerCommon(fs, &cf)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: void stamp <file>")
		return 2
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(fs.Arg(0)), err)
		return 1
	}

	e, code := openEnv(&cf, errOut)
	if code != 0 {
		return code
	}
	defer e.close()

	f, err := e.client.CreateCommitment(context.Background(), data)
	if err != nil {
		if protocol.IsKind(err, protocol.KindConflict) {
			fmt.Fprintf(errOut, "already committed: %s\n", f)
			return 1
		}
		fmt.Fprintf(errOut, "stamp: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, f)
	return 0
}

func parseFingerprintArg(fs *flag.FlagSet, fingerprintHex string, errOut io.Writer) (protocol.Fingerprint, int) {
	if fingerprintHex != "" {
		if fs.NArg() != 0 {
			fmt.Fprintln(errOut, "provide either a file or --fingerprint, not both")
			return protocol.Fingerprint{}, 2
		}
		f, err := protocol.ParseFingerprint(fingerprintHex)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --fingerprint: %v\n", err)
			return protocol.Fingerprint{}, 2
		}
		return f, 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: void verify (<file> | --fingerprint <64hex>)")
		return protocol.Fingerprint{}, 2
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(fs.Arg(0)), err)
		return protocol.Fingerprint{}, 1
	}
	return protocol.FingerprintOf(data), 0
}

func cmdVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var cf commonFlags
	var fingerprintHex string
	registerCommon(fs, &cf)
	fs.StringVar(&fingerprintHex, "fingerprint", "", "Fingerprint as 64 hex chars (instead of a file)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	f, code := parseFingerprintArg(fs, fingerprintHex, errOut)
	if code != 0 {
		return code
	}

	e, code := openEnv(&cf, errOut)
	if code != 0 {
		return code
	}
	defer e.close()

	record, err := e.client.VerifyCommitment(context.Background(), f)
	if err != nil {
		if protocol.IsKind(err, protocol.KindNotFound) {
			fmt.Fprintf(errOut, "not committed: %s\n", f)
			return 1
		}
		fmt.Fprintf(errOut, "verify: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Fingerprint: %s\n", record.Fingerprint)
	fmt.Fprintf(out, "Owner:       %s\n", record.Owner)
	fmt.Fprintf(out, "Committed:   %d\n", record.Timestamp)
	return 0
}

func cmdReceipt(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("receipt", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var cf commonFlags
	var fingerprintHex string
	registerCommon(fs, &cf)
	fs.StringVar(&fingerprintHex, "fingerprint", "", "Fingerprint as 64 hex chars")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fingerprintHex == "" {
		fmt.Fprintln(errOut, "missing --fingerprint")
		return 2
	}
	f, err := protocol.ParseFingerprint(fingerprintHex)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --fingerprint: %v\n", err)
		return 2
	}

	e, code := openEnv(&cf, errOut)
	if code != 0 {
		return code
	}
	defer e.close()

	receipt, err := e.client.CommitmentReceipt(context.Background(), f)
	if err != nil {
		fmt.Fprintf(errOut, "receipt: %v\n", err)
		return 1
	}
	rk, err := wallet.NewReceiptKey()
	if err != nil {
		fmt.Fprintf(errOut, "receipt key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Fingerprint: %s\n", receipt.Fingerprint)
	fmt.Fprintf(out, "Owner:       %s\n", receipt.Identity)
	fmt.Fprintf(out, "Committed:   %d\n", receipt.Timestamp)
	fmt.Fprintf(out, "Receipt-Key: %s\n", rk.PublicKey())
	fmt.Fprintf(out, "Signature:   %s\n", rk.Sign(receipt))
	return 0
}

func cmdOrg(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: void org <create|show|close|read> ...")
		return 2
	}
	switch args[0] {
	case "create":
		return cmdOrgCreate(args[1:], out, errOut)
	case "show":
		return cmdOrgShow(args[1:], out, errOut)
	case "close":
		return cmdOrgClose(args[1:], out, errOut)
	case "read":
		return cmdOrgRead(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown org subcommand: %s\n", args[0])
		return 2
	}
}

func cmdOrgCreate(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("org create", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var cf commonFlags
	var slug, name, description string
	registerCommon(fs, &cf)
	fs.StringVar(&slug, "slug", "", "Drop-box slug (unique, max 32 chars)")
	fs.StringVar(&name, "name", "", "Display name (max 64 chars)")
	fs.StringVar(&description, "description", "", "Description (max 256 chars)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if slug == "" {
		fmt.Fprintln(errOut, "missing --slug")
		return 2
	}

	e, code := openEnv(&cf, errOut)
	if code != 0 {
		return code
	}
	defer e.close()

	grant, err := e.client.CreateNamespace(context.Background(), slug, name, description)
	if err != nil {
		fmt.Fprintf(errOut, "org create: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created drop box: %s\n", grant.Namespace.Slug)
	fmt.Fprintf(out, "Admin:            %s\n", grant.Namespace.Admin)
	fmt.Fprintf(out, "Private-Key:      %s\n", hex.EncodeToString(grant.PrivateKey))
	fmt.Fprintln(errOut, "store the private key now; it is shown exactly once and cannot be recovered")
	return 0
}

func cmdOrgShow(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("org show", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var cf commonFlags
	var slug string
	registerCommon(fs, &cf)
	fs.StringVar(&slug, "slug", "", "Drop-box slug")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if slug == "" {
		fmt.Fprintln(errOut, "missing --slug")
		return 2
	}

	e, code := openEnv(&cf, errOut)
	if code != 0 {
		return code
	}
	defer e.close()

	ns, err := e.client.GetNamespace(context.Background(), slug)
	if err != nil {
		fmt.Fprintf(errOut, "org show: %v\n", err)
		return 1
	}
	state := "active"
	if !ns.Active {
		state = "closed"
	}
	fmt.Fprintf(out, "Slug:        %s\n", ns.Slug)
	fmt.Fprintf(out, "Name:        %s\n", ns.Name)
	fmt.Fprintf(out, "Description: %s\n", ns.Description)
	fmt.Fprintf(out, "Admin:       %s\n", ns.Admin)
	fmt.Fprintf(out, "State:       %s\n", state)
	fmt.Fprintf(out, "Submissions: %d\n", ns.SubmissionCount)
	return 0
}

func cmdOrgClose(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("org close", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var cf commonFlags
	var slug string
	registerCommon(fs, &cf)
	fs.StringVar(&slug, "slug", "", "Drop-box slug")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if slug == "" {
		fmt.Fprintln(errOut, "missing --slug")
		return 2
	}

	e, code := openEnv(&cf, errOut)
	if code != 0 {
		return code
	}
	defer e.close()

	if err := e.client.DeactivateNamespace(context.Background(), slug); err != nil {
		fmt.Fprintf(errOut, "org close: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Closed drop box: %s\n", slug)
	return 0
}

func cmdOrgRead(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("org read", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var cf commonFlags
	var slug, keyHex, saveDir string
	var id uint64
	registerCommon(fs, &cf)
	fs.StringVar(&slug, "slug", "", "Drop-box slug")
	fs.Uint64Var(&id, "id", 0, "Submission sequence id")
	fs.StringVar(&keyHex, "key-hex", "", "Drop-box private key as 64 hex chars (from 'org create')")
	fs.StringVar(&saveDir, "save-dir", "", "Directory to write attachments into")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if slug == "" {
		fmt.Fprintln(errOut, "missing --slug")
		return 2
	}
	if keyHex == "" {
		fmt.Fprintln(errOut, "missing --key-hex")
		return 2
	}
	raw, err := hex.DecodeString(strings.TrimSpace(keyHex))
	if err != nil {
		fmt.Fprintf(errOut, "invalid --key-hex: %v\n", err)
		return 2
	}
	kp, err := seal.ParsePrivateKey(raw)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --key-hex: %v\n", err)
		return 2
	}

	e, code := openEnv(&cf, errOut)
	if code != 0 {
		return code
	}
	defer e.close()

	ctx := context.Background()
	sub, err := e.client.GetSubmission(ctx, slug, id)
	if err != nil {
		fmt.Fprintf(errOut, "org read: %v\n", err)
		return 1
	}
	env, err := e.client.Decrypt(ctx, sub.Locator, kp)
	if err != nil {
		fmt.Fprintf(errOut, "decrypt: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Submitter: %s\n", sub.Submitter)
	fmt.Fprintf(out, "Received:  %d\n", sub.Timestamp)
	return printEnvelope(env, saveDir, out, errOut)
}

func cmdSubmit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var cf commonFlags
	var slug, message, messageFile string
	var attach stringList
	registerCommon(fs, &cf)
	fs.StringVar(&slug, "slug", "", "Drop-box slug")
	fs.StringVar(&message, "message", "", "Message text")
	fs.StringVar(&messageFile, "message-file", "", "Read the message from a file ('-' for stdin)")
	fs.Var(&attach, "attach", "Attachment file (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if slug == "" {
		fmt.Fprintln(errOut, "missing --slug")
		return 2
	}
	env, code := buildEnvelope(message, messageFile, attach, errOut)
	if code != 0 {
		return code
	}

	e, code := openEnv(&cf, errOut)
	if code != 0 {
		return code
	}
	defer e.close()

	id, err := e.client.Submit(context.Background(), slug, env)
	if err != nil {
		fmt.Fprintf(errOut, "submit: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Submitted to %s as #%d\n", slug, id)
	return 0
}

func cmdInbox(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 || args[0] != "activate" {
		fmt.Fprintln(errOut, "usage: void inbox activate")
		return 2
	}
	fs := flag.NewFlagSet("inbox activate", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var cf commonFlags
	registerCommon(fs, &cf)
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	e, code := openEnv(&cf, errOut)
	if code != 0 {
		return code
	}
	defer e.close()

	pub, err := e.client.ActivateInbox(context.Background())
	if err != nil {
		fmt.Fprintf(errOut, "inbox activate: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Inbox active for %s\n", e.signer.Identity())
	fmt.Fprintf(out, "Encryption-Key: %s\n", hex.EncodeToString(pub))
	return 0
}

func cmdSend(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var cf commonFlags
	var to, message, messageFile string
	var burnAfterReading bool
	var attach stringList
	registerCommon(fs, &cf)
	fs.StringVar(&to, "to", "", "Recipient identity (base58)")
	fs.StringVar(&message, "message", "", "Message text")
	fs.StringVar(&messageFile, "message-file", "", "Read the message from a file ('-' for stdin)")
	fs.BoolVar(&burnAfterReading, "burn-after-reading", false, "Ask the recipient's client to burn after the first read")
	fs.Var(&attach, "attach", "Attachment file (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if to == "" {
		fmt.Fprintln(errOut, "missing --to")
		return 2
	}
	recipient, err := wallet.ParseIdentity(to)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --to: %v\n", err)
		return 2
	}
	env, code := buildEnvelope(message, messageFile, attach, errOut)
	if code != 0 {
		return code
	}

	e, code := openEnv(&cf, errOut)
	if code != 0 {
		return code
	}
	defer e.close()

	id, err := e.client.Send(context.Background(), recipient, env, burnAfterReading)
	if err != nil {
		if protocol.IsKind(err, protocol.KindNotFound) {
			fmt.Fprintf(errOut, "send: %s has not activated an inbox\n", to)
			return 1
		}
		fmt.Fprintf(errOut, "send: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Sent to %s as #%d\n", to, id)
	return 0
}

func cmdRead(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("read", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var cf commonFlags
	var saveDir string
	var id uint64
	var keepUnburned bool
	registerCommon(fs, &cf)
	fs.Uint64Var(&id, "id", 0, "Message sequence id")
	fs.StringVar(&saveDir, "save-dir", "", "Directory to write attachments into")
	fs.BoolVar(&keepUnburned, "keep", false, "Do not burn a burn-after-reading message")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	e, code := openEnv(&cf, errOut)
	if code != 0 {
		return code
	}
	defer e.close()

	ctx := context.Background()
	msg, err := e.client.GetMessage(ctx, e.signer.Identity(), id)
	if err != nil {
		fmt.Fprintf(errOut, "read: %v\n", err)
		return 1
	}
	if msg.Burned {
		fmt.Fprintf(errOut, "message #%d is burned\n", id)
		return 1
	}

	kp, err := e.client.DeriveInboxKey()
	if err != nil {
		fmt.Fprintf(errOut, "derive inbox key: %v\n", err)
		return 1
	}
	env, err := e.client.Decrypt(ctx, msg.Locator, kp)
	if err != nil {
		fmt.Fprintf(errOut, "decrypt: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "From:     %s\n", msg.Sender)
	fmt.Fprintf(out, "Received: %d\n", msg.Timestamp)
	if code := printEnvelope(env, saveDir, out, errOut); code != 0 {
		return code
	}

	if msg.BurnAfterReading && !keepUnburned {
		if err := e.client.Burn(ctx, id); err != nil {
			fmt.Fprintf(errOut, "burn after reading: %v\n", err)
			return 1
		}
		fmt.Fprintf(errOut, "message #%d burned after reading\n", id)
	}
	return 0
}

func cmdBurn(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("burn", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var cf commonFlags
	var id uint64
	registerCommon(fs, &cf)
	fs.Uint64Var(&id, "id", 0, "Message sequence id")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	e, code := openEnv(&cf, errOut)
	if code != 0 {
		return code
	}
	defer e.close()

	if err := e.client.Burn(context.Background(), id); err != nil {
		fmt.Fprintf(errOut, "burn: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Burned message #%d\n", id)
	return 0
}

func cmdVouch(args []string, out io.Writer, errOut io.Writer) int {
	return vouchOp(args, out, errOut, "vouch")
}

func cmdUnvouch(args []string, out io.Writer, errOut io.Writer) int {
	return vouchOp(args, out, errOut, "unvouch")
}

func vouchOp(args []string, out io.Writer, errOut io.Writer, op string) int {
	fs := flag.NewFlagSet(op, flag.ContinueOnError)
	fs.SetOutput(errOut)
	var cf commonFlags
	var fingerprintHex string
	registerCommon(fs, &cf)
	fs.StringVar(&fingerprintHex, "fingerprint", "", "Fingerprint as 64 hex chars")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fingerprintHex == "" {
		fmt.Fprintln(errOut, "missing --fingerprint")
		return 2
	}
	f, err := protocol.ParseFingerprint(fingerprintHex)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --fingerprint: %v\n", err)
		return 2
	}

	e, code := openEnv(&cf, errOut)
	if code != 0 {
		return code
	}
	defer e.close()

	if op == "vouch" {
		err = e.client.Vouch(context.Background(), f)
	} else {
		err = e.client.Unvouch(context.Background(), f)
	}
	if err != nil {
		fmt.Fprintf(errOut, "%s: %v\n", op, err)
		return 1
	}
	fmt.Fprintf(out, "OK\n")
	return 0
}

func cmdVouched(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("vouched", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var cf commonFlags
	var of, fingerprintHex string
	registerCommon(fs, &cf)
	fs.StringVar(&of, "of", "", "Voucher identity (base58)")
	fs.StringVar(&fingerprintHex, "fingerprint", "", "Fingerprint as 64 hex chars")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if of == "" || fingerprintHex == "" {
		fmt.Fprintln(errOut, "usage: void vouched --of <identity> --fingerprint <64hex>")
		return 2
	}
	voucher, err := wallet.ParseIdentity(of)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --of: %v\n", err)
		return 2
	}
	f, err := protocol.ParseFingerprint(fingerprintHex)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --fingerprint: %v\n", err)
		return 2
	}

	e, code := openEnv(&cf, errOut)
	if code != 0 {
		return code
	}
	defer e.close()

	ok, err := e.client.Vouched(context.Background(), voucher, f)
	if err != nil {
		fmt.Fprintf(errOut, "vouched: %v\n", err)
		return 1
	}
	if ok {
		_, _ = fmt.Fprintln(out, "vouched")
		return 0
	}
	_, _ = fmt.Fprintln(out, "not vouched")
	return 1
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func buildEnvelope(message, messageFile string, attach []string, errOut io.Writer) (envelope.Envelope, int) {
	if message != "" && messageFile != "" {
		fmt.Fprintln(errOut, "provide --message or --message-file, not both")
		return envelope.Envelope{}, 2
	}
	if messageFile != "" {
		var b []byte
		var err error
		if messageFile == "-" {
			b, err = io.ReadAll(os.Stdin)
		} else {
			b, err = os.ReadFile(messageFile)
		}
		if err != nil {
			fmt.Fprintf(errOut, "read message: %v\n", err)
			return envelope.Envelope{}, 1
		}
		message = string(b)
	}
	if message == "" && len(attach) == 0 {
		fmt.Fprintln(errOut, "empty envelope: provide --message, --message-file, or --attach")
		return envelope.Envelope{}, 2
	}

	env := envelope.Envelope{Message: message}
	for _, p := range attach {
		data, err := os.ReadFile(p)
		if err != nil {
			fmt.Fprintf(errOut, "read attachment %s: %v\n", p, err)
			return envelope.Envelope{}, 1
		}
		env.Attachments = append(env.Attachments, envelope.Attachment{
			Name:        filepath.Base(p),
			ContentType: "application/octet-stream",
			Data:        data,
		})
	}
	if err := env.Validate(); err != nil {
		fmt.Fprintf(errOut, "invalid envelope: %v\n", err)
		return envelope.Envelope{}, 2
	}
	return env, 0
}

func printEnvelope(env envelope.Envelope, saveDir string, out io.Writer, errOut io.Writer) int {
	if env.Message != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, env.Message)
	}
	if len(env.Attachments) == 0 {
		return 0
	}
	if saveDir == "" {
		fmt.Fprintf(out, "\n%d attachment(s); pass --save-dir to write them out:\n", len(env.Attachments))
		for _, a := range env.Attachments {
			fmt.Fprintf(out, "  %s (%d bytes, %s)\n", a.Name, len(a.Data), a.ContentType)
		}
		return 0
	}
	if err := os.MkdirAll(saveDir, 0o700); err != nil {
		fmt.Fprintf(errOut, "save dir: %v\n", err)
		return 1
	}
	for _, a := range env.Attachments {
		// Base the name to keep writes inside saveDir.
		path := filepath.Join(saveDir, filepath.Base(a.Name))
		if err := os.WriteFile(path, a.Data, 0o600); err != nil {
			fmt.Fprintf(errOut, "write %s: %v\n", a.Name, err)
			return 1
		}
		fmt.Fprintf(out, "wrote %s\n", path)
	}
	return 0
}
