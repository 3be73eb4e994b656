/*
File: engine_data.go
Version: 1.0.0
Description: Default datasets for the rule engine and the feature extractor.
             Every list can be replaced from the engine section of the config.
*/

package main

// --- 1. Trusted domains (exact match or any subdomain) ---
var defaultWhitelist = []string{
	"google.com", "www.google.com",
	"microsoft.com", "www.microsoft.com",
	"login.microsoftonline.com",
	"facebook.com", "www.facebook.com",
	"amazon.com", "www.amazon.com",
	"github.com", "www.github.com",
	"youtube.com", "www.youtube.com",
	"twitter.com", "x.com",
	"linkedin.com", "www.linkedin.com",
	"apple.com", "www.apple.com",
	"netflix.com", "www.netflix.com",
	"instagram.com", "www.instagram.com",
	"whatsapp.com", "www.whatsapp.com",
	"stackoverflow.com", "www.stackoverflow.com",
	"wikipedia.org", "www.wikipedia.org",
	"reddit.com", "www.reddit.com",
	"vercel.com", "vercel.app",
}

// --- 2. Suspicious TLDs (first match wins, order matters) ---
var defaultSuspiciousTLDs = []string{".ru", ".tk", ".cn", ".ga", ".ml", ".cf", ".gq"}

// --- 3. Rule keywords (reported in this order) ---
var defaultRuleKeywords = []string{
	"login", "verify", "update", "secure", "account",
	"bank", "paypal", "confirm", "signin", "security",
	"free", "bonus", "win", "prize",
}

// --- 4. Feature keywords ---
// Part of the feature contract with the trained models: changing this list changes
// count_suspicious_words and needs a new FeatureSetVersion.
var defaultFeatureKeywords = []string{
	"login", "verify", "update", "secure", "account", "bank",
	"free", "bonus", "paypal", "confirm", "signin", "security",
}

// --- 5. Impersonated brands ---
var defaultBrands = []string{
	"google.com", "microsoft.com", "paypal.com",
	"facebook.com", "apple.com", "amazon.com",
	"netflix.com", "outlook.com",
}

// --- 6. URL shorteners (substring of host) ---
var defaultShorteners = []string{
	"bit.ly", "goo.gl", "tinyurl.com", "ow.ly", "t.co",
	"is.gd", "buff.ly", "adf.ly",
}
