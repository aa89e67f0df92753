package intent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/gustavo/chainagent/internal/errors"
	"github.com/gustavo/chainagent/internal/token"
)

// The grammar is declarative: one entry per action kind, with verb
// alternatives and a phrase template. Placeholders expand to named capture
// groups, so adding a phrasing or an action kind is additive.
//
//	{amount}  decimal number
//	{token}   token symbol
//	{token2}  second token symbol (swap output)
//	{address} counterparty address (validated by AddressFormat)
//	{venue}   optional protocol name
type rule struct {
	Kind    Kind
	Verbs   []string
	Phrase  string
	compile *regexp.Regexp
}

var grammar = []rule{
	{Kind: KindTransfer, Verbs: []string{"send", "transfer", "pay"}, Phrase: "{verb} {amount} {token} to {address}"},
	{Kind: KindSwap, Verbs: []string{"swap", "exchange", "trade", "convert"}, Phrase: "{verb} {amount} {token} (?:for|to|into) {token2}"},
	{Kind: KindDeposit, Verbs: []string{"deposit", "supply", "lend"}, Phrase: "{verb} {amount} {token}{venue}"},
	{Kind: KindWithdraw, Verbs: []string{"withdraw", "redeem"}, Phrase: "{verb} {amount} {token}{venue}"},
	{Kind: KindBorrow, Verbs: []string{"borrow"}, Phrase: "{verb} {amount} {token}{venue}"},
	{Kind: KindRepay, Verbs: []string{"repay", "pay back", "payback"}, Phrase: "{verb} {amount} {token}{venue}"},
	{Kind: KindStake, Verbs: []string{"stake"}, Phrase: "{verb} {amount} {token}{venue}"},
	{Kind: KindUnstake, Verbs: []string{"unstake", "withdraw staked"}, Phrase: "{verb} {amount} {token}{venue}"},
}

var placeholderExpansions = map[string]string{
	"{amount}":  `(?P<amount>[0-9]+(?:\.[0-9]+)?)`,
	"{token}":   `(?P<token>[A-Za-z][A-Za-z0-9]{0,10})`,
	"{token2}":  `(?P<token2>[A-Za-z][A-Za-z0-9]{0,10})`,
	"{address}": `(?P<address>\S+)`,
	"{venue}":   `(?:\s+(?:from|to|on|into|in|at|with)\s+(?P<venue>[A-Za-z][A-Za-z0-9]*))?`,
}

func init() {
	for i := range grammar {
		grammar[i].compile = compileRule(grammar[i])
	}
}

func compileRule(r rule) *regexp.Regexp {
	verbs := make([]string, 0, len(r.Verbs))
	for _, v := range r.Verbs {
		verbs = append(verbs, regexp.QuoteMeta(v))
	}
	pattern := strings.ReplaceAll(r.Phrase, "{verb}", "(?:"+strings.Join(verbs, "|")+")")
	for placeholder, expansion := range placeholderExpansions {
		pattern = strings.ReplaceAll(pattern, placeholder, expansion)
	}
	pattern = strings.ReplaceAll(pattern, " ", `\s+`)
	return regexp.MustCompile(`(?i)^\s*(?:please\s+)?` + pattern + `\s*[.!]?\s*$`)
}

// Parser extracts typed action requests from raw text. It is a pure function
// of the input, the token registry, and the address-format capability.
type Parser struct {
	registry *token.Registry
	address  AddressFormat
}

func NewParser(registry *token.Registry, address AddressFormat) *Parser {
	return &Parser{registry: registry, address: address}
}

// Parse matches the text against the grammar. A text that matches no pattern
// is a parse failure; a matched text with an unknown token symbol or a
// malformed counterparty is a validation failure, not a parse failure.
func (p *Parser) Parse(text string) (ActionRequest, error) {
	return p.ParseHinted(text, nil)
}

// ParseHinted restricts matching to the candidate kinds when hints are given.
func (p *Parser) ParseHinted(text string, candidates []Kind) (ActionRequest, error) {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return ActionRequest{}, clierr.New(clierr.CodeParse, "empty instruction")
	}
	for _, r := range grammar {
		if len(candidates) > 0 && !kindIn(r.Kind, candidates) {
			continue
		}
		match := r.compile.FindStringSubmatch(clean)
		if match == nil {
			continue
		}
		return p.buildRequest(r, clean, captures(r.compile, match))
	}
	return ActionRequest{}, clierr.New(clierr.CodeParse,
		fmt.Sprintf("could not extract an action from the instruction; supported actions are %s (try a form like \"send 0.1 MNT to 0x...\")", kindList()))
}

func (p *Parser) unsupportedToken(sym string) error {
	return clierr.New(clierr.CodeValidation,
		fmt.Sprintf("unsupported token %q on this chain (supported: %s)",
			strings.ToUpper(sym), strings.Join(p.registry.Symbols(), ", ")))
}

func kindList() string {
	kinds := Kinds()
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, string(k))
	}
	return strings.Join(out, ", ")
}

func (p *Parser) buildRequest(r rule, raw string, groups map[string]string) (ActionRequest, error) {
	sym := groups["token"]
	tok, ok := p.registry.BySymbol(sym)
	if !ok {
		return ActionRequest{}, p.unsupportedToken(sym)
	}
	req := ActionRequest{
		Kind:   r.Kind,
		Amount: token.NormalizeDecimal(groups["amount"]),
		Token:  tok,
		Venue:  normalizeVenue(groups["venue"]),
		Raw:    raw,
	}
	if quoteSym := groups["token2"]; quoteSym != "" {
		quote, ok := p.registry.BySymbol(quoteSym)
		if !ok {
			return ActionRequest{}, p.unsupportedToken(quoteSym)
		}
		if quote.Symbol == tok.Symbol {
			return ActionRequest{}, clierr.New(clierr.CodeValidation, "swap input and output tokens must differ")
		}
		req.QuoteToken = &quote
	}
	if addr := groups["address"]; addr != "" {
		if !p.address.Valid(addr) {
			return ActionRequest{}, clierr.New(clierr.CodeValidation, fmt.Sprintf("invalid counterparty address %q", addr))
		}
		req.Counterparty = p.address.Normalize(addr)
	}
	return req, nil
}

func captures(re *regexp.Regexp, match []string) map[string]string {
	out := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if name == "" || i >= len(match) {
			continue
		}
		out[name] = match[i]
	}
	return out
}

func kindIn(kind Kind, kinds []Kind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// EVMAddressFormat validates 20-byte hex addresses.
type EVMAddressFormat struct{}

func (EVMAddressFormat) Valid(raw string) bool {
	return common.IsHexAddress(strings.TrimSpace(raw))
}

func (EVMAddressFormat) Normalize(raw string) string {
	return common.HexToAddress(strings.TrimSpace(raw)).Hex()
}
