package stdlib

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/blade-lang/blade/pkg/module"
	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// hashModule covers the teacher's sha256Hash/sha512Hash/md5Hash/
// aesEncrypt/aesDecrypt/aesGenerateKey primitives, plus a BLAKE2b digest
// (the DOMAIN STACK's grounding for golang.org/x/crypto/blake2b).
func hashModule() *module.Registration {
	return &module.Registration{
		Name: "hash",
		Functions: map[string]func(object.NativeContext, []value.Value) (value.Value, error){
			"sha256":      hashSHA256,
			"sha512":      hashSHA512,
			"md5":         hashMD5,
			"blake2b":     hashBlake2b,
			"aes_encrypt": aesEncrypt,
			"aes_decrypt": aesDecrypt,
			"aes_key":     aesGenerateKey,
		},
	}
}

func hashSHA256(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	b, err := argBytes(ctx, args, 0, "sha256")
	if err != nil {
		return value.NilValue, err
	}
	sum := sha256.Sum256(b)
	return newString(ctx, fmt.Sprintf("%x", sum)), nil
}

func hashSHA512(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	b, err := argBytes(ctx, args, 0, "sha512")
	if err != nil {
		return value.NilValue, err
	}
	sum := sha512.Sum512(b)
	return newString(ctx, fmt.Sprintf("%x", sum)), nil
}

func hashMD5(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	b, err := argBytes(ctx, args, 0, "md5")
	if err != nil {
		return value.NilValue, err
	}
	sum := md5.Sum(b)
	return newString(ctx, fmt.Sprintf("%x", sum)), nil
}

func hashBlake2b(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	b, err := argBytes(ctx, args, 0, "blake2b")
	if err != nil {
		return value.NilValue, err
	}
	sum := blake2b.Sum256(b)
	return newString(ctx, fmt.Sprintf("%x", sum)), nil
}

func aesEncrypt(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	data, err := argString(ctx, args, 0, "aes_encrypt")
	if err != nil {
		return value.NilValue, err
	}
	key, err := argString(ctx, args, 1, "aes_encrypt")
	if err != nil {
		return value.NilValue, err
	}
	keyBytes := []byte(key)
	if len(keyBytes) != 32 {
		return value.NilValue, ctx.Raise("ValueError", "AES key must be 32 bytes, got %d", len(keyBytes))
	}
	block, cerr := aes.NewCipher(keyBytes)
	if cerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "%s", cerr.Error())
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to generate IV: %s", err.Error())
	}

	plaintext := []byte(data)
	padding := aes.BlockSize - (len(plaintext) % aes.BlockSize)
	padded := make([]byte, len(plaintext)+padding)
	copy(padded, plaintext)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(padding)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	result := append(iv, ciphertext...)
	return newString(ctx, base64.StdEncoding.EncodeToString(result)), nil
}

func aesDecrypt(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	data, err := argString(ctx, args, 0, "aes_decrypt")
	if err != nil {
		return value.NilValue, err
	}
	key, err := argString(ctx, args, 1, "aes_decrypt")
	if err != nil {
		return value.NilValue, err
	}
	keyBytes := []byte(key)
	if len(keyBytes) != 32 {
		return value.NilValue, ctx.Raise("ValueError", "AES key must be 32 bytes, got %d", len(keyBytes))
	}
	encrypted, derr := base64.StdEncoding.DecodeString(data)
	if derr != nil {
		return value.NilValue, ctx.Raise("ValueError", "invalid base64: %s", derr.Error())
	}
	if len(encrypted) < aes.BlockSize {
		return value.NilValue, ctx.Raise("ValueError", "ciphertext too short")
	}
	block, cerr := aes.NewCipher(keyBytes)
	if cerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "%s", cerr.Error())
	}
	iv := encrypted[:aes.BlockSize]
	ciphertext := encrypted[aes.BlockSize:]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	if len(plaintext) == 0 {
		return value.NilValue, ctx.Raise("ValueError", "invalid padding")
	}
	padding := int(plaintext[len(plaintext)-1])
	if padding > len(plaintext) || padding > aes.BlockSize {
		return value.NilValue, ctx.Raise("ValueError", "invalid padding")
	}
	plaintext = plaintext[:len(plaintext)-padding]
	return newString(ctx, string(plaintext)), nil
}

func aesGenerateKey(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to generate key: %s", err.Error())
	}
	return newString(ctx, base64.StdEncoding.EncodeToString(key)), nil
}
