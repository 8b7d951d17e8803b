// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// AlgorithmFamily は署名アルゴリズムの暗号プリミティブによる分類を表す。
type AlgorithmFamily int

const (
	// FamilyHMAC は共通鍵（HMAC）系。
	FamilyHMAC AlgorithmFamily = iota + 1
	// FamilyRSA はRSA鍵ペア系（PKCS#1 v1.5 / PSS）。
	FamilyRSA
	// FamilyEC は楕円曲線鍵ペア系。
	FamilyEC
)

func (f AlgorithmFamily) String() string {
	switch f {
	case FamilyHMAC:
		return "HMAC"
	case FamilyRSA:
		return "RSA"
	case FamilyEC:
		return "EC"
	}
	return fmt.Sprintf("AlgorithmFamily(%d)", int(f))
}

// Algorithm は署名アルゴリズム識別子。値は ParseAlgorithm で検証済みのものだけを扱う。
type Algorithm string

const (
	AlgorithmHS256 Algorithm = "HS256"
	AlgorithmHS384 Algorithm = "HS384"
	AlgorithmHS512 Algorithm = "HS512"
	AlgorithmRS256 Algorithm = "RS256"
	AlgorithmRS384 Algorithm = "RS384"
	AlgorithmRS512 Algorithm = "RS512"
	AlgorithmPS256 Algorithm = "PS256"
	AlgorithmPS384 Algorithm = "PS384"
	AlgorithmPS512 Algorithm = "PS512"
	AlgorithmES256 Algorithm = "ES256"
	AlgorithmES384 Algorithm = "ES384"
	AlgorithmES512 Algorithm = "ES512"
)

type algorithmSpec struct {
	family AlgorithmFamily
	bits   int
	method jwt.SigningMethod
}

var algorithms = map[Algorithm]algorithmSpec{
	AlgorithmHS256: {FamilyHMAC, 256, jwt.SigningMethodHS256},
	AlgorithmHS384: {FamilyHMAC, 384, jwt.SigningMethodHS384},
	AlgorithmHS512: {FamilyHMAC, 512, jwt.SigningMethodHS512},
	AlgorithmRS256: {FamilyRSA, 256, jwt.SigningMethodRS256},
	AlgorithmRS384: {FamilyRSA, 384, jwt.SigningMethodRS384},
	AlgorithmRS512: {FamilyRSA, 512, jwt.SigningMethodRS512},
	AlgorithmPS256: {FamilyRSA, 256, jwt.SigningMethodPS256},
	AlgorithmPS384: {FamilyRSA, 384, jwt.SigningMethodPS384},
	AlgorithmPS512: {FamilyRSA, 512, jwt.SigningMethodPS512},
	AlgorithmES256: {FamilyEC, 256, jwt.SigningMethodES256},
	AlgorithmES384: {FamilyEC, 384, jwt.SigningMethodES384},
	AlgorithmES512: {FamilyEC, 512, jwt.SigningMethodES512},
}

// Algorithms はサポートする全アルゴリズムを定義順で返す。
func Algorithms() []Algorithm {
	return []Algorithm{
		AlgorithmHS256, AlgorithmHS384, AlgorithmHS512,
		AlgorithmRS256, AlgorithmRS384, AlgorithmRS512,
		AlgorithmPS256, AlgorithmPS384, AlgorithmPS512,
		AlgorithmES256, AlgorithmES384, AlgorithmES512,
	}
}

// ParseAlgorithm は文字列をアルゴリズム識別子に変換する。
func ParseAlgorithm(s string) (Algorithm, error) {
	alg := Algorithm(s)
	if _, ok := algorithms[alg]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidAlgorithm, s)
	}
	return alg, nil
}

// Valid はサポート対象のアルゴリズムかどうかを返す。
func (a Algorithm) Valid() bool {
	_, ok := algorithms[a]
	return ok
}

// Family はアルゴリズムの系統を返す。未知の値には0を返す。
func (a Algorithm) Family() AlgorithmFamily {
	return algorithms[a].family
}

// DigestBits はハッシュ関数のビット長を返す（HS384 なら 384）。
func (a Algorithm) DigestBits() int {
	return algorithms[a].bits
}

// SigningMethod はトークン発行側が利用する jwt の署名方式を返す。
func (a Algorithm) SigningMethod() jwt.SigningMethod {
	return algorithms[a].method
}

func (a Algorithm) String() string {
	return string(a)
}
