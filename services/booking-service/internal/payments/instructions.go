package payments

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const defaultInstructionMessage = "Checkout created. Integrate provider API to generate payment link or PIX payload."

// Instructions tell the customer how to complete a checkout.
type Instructions struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	PixKey  string `json:"pixKey"`
}

type providerInstructions struct {
	Message string `mapstructure:"message"`
	PixKey  string `mapstructure:"pix-key"`
}

type instructionsFile struct {
	Payments struct {
		Providers map[string]providerInstructions `mapstructure:"providers"`
	} `mapstructure:"payments"`
}

// InstructionBook holds per-provider checkout copy. Providers missing from the
// book get the default message and pix key.
type InstructionBook struct {
	providers map[string]providerInstructions
	pixKey    string
}

func NewInstructionBook(pixKey string) *InstructionBook {
	return &InstructionBook{providers: map[string]providerInstructions{}, pixKey: pixKey}
}

// LoadInstructionBook reads the payments.providers section of a YAML file.
// An empty path yields the defaults only.
func LoadInstructionBook(path, pixKey string) (*InstructionBook, error) {
	book := NewInstructionBook(pixKey)
	if strings.TrimSpace(path) == "" {
		return book, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var f instructionsFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for name, p := range f.Payments.Providers {
		book.providers[strings.ToLower(name)] = p
	}
	return book, nil
}

func (b *InstructionBook) For(provider string) Instructions {
	out := Instructions{Type: provider, Message: defaultInstructionMessage, PixKey: b.pixKey}
	if p, ok := b.providers[strings.ToLower(provider)]; ok {
		if p.Message != "" {
			out.Message = p.Message
		}
		if p.PixKey != "" {
			out.PixKey = p.PixKey
		}
	}
	return out
}
