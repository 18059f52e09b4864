// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package cli

import (
	"github.com/alecthomas/participle"
)

// noinspection GoStructTag
type Command struct {
	ChannelMasks *ChannelMasksCmd `  @@` //nolint
	Config       *ConfigCmd       `| @@` //nolint
	CountryCode  *CountryCodeCmd  `| @@` //nolint
	Disable      *DisableCmd      `| @@` //nolint
	Dns          *DnsCmd          `| @@` //nolint
	Dump         *DumpCmd         `| @@` //nolint
	Enable       *EnableCmd       `| @@` //nolint
	EphemeralKey *EphemeralKeyCmd `| @@` //nolint
	Exit         *ExitCmd         `| @@` //nolint
	Help         *HelpCmd         `| @@` //nolint
	InfraLink    *InfraLinkCmd    `| @@` //nolint
	Join         *JoinCmd         `| @@` //nolint
	Leave        *LeaveCmd        `| @@` //nolint
	LogLevel     *LogLevelCmd     `| @@` //nolint
	MaxPower     *MaxPowerCmd     `| @@` //nolint
	Migrate      *MigrateCmd      `| @@` //nolint
	Nat64Prefix  *Nat64PrefixCmd  `| @@` //nolint
	Ot           *OtCmd           `| @@` //nolint
	State        *StateCmd        `| @@` //nolint
	Terminate    *TerminateCmd    `| @@` //nolint
	Trel         *TrelCmd         `| @@` //nolint
}

// noinspection GoStructTag
type StateCmd struct {
	Cmd struct{} `"state"` //nolint
}

// noinspection GoStructTag
type EnableCmd struct {
	Cmd struct{} `"enable"` //nolint
}

// noinspection GoStructTag
type DisableCmd struct {
	Cmd struct{} `"disable"` //nolint
}

// noinspection GoStructTag
type JoinCmd struct {
	Cmd     struct{} `"join"`  //nolint
	Dataset string   `@String` //nolint
}

// noinspection GoStructTag
type LeaveCmd struct {
	Cmd   struct{} `"leave"`      //nolint
	Erase bool     `[ @"erase" ]` //nolint
}

// noinspection GoStructTag
type MigrateCmd struct {
	Cmd     struct{} `"migrate"` //nolint
	Dataset string   `@String`   //nolint
}

// noinspection GoStructTag
type CountryCodeCmd struct {
	Cmd  struct{} `"countrycode"`       //nolint
	Code string   `@( Ident | String )` //nolint
}

// noinspection GoStructTag
type ChannelMasksCmd struct {
	Cmd struct{} `"channelmasks"` //nolint
}

// noinspection GoStructTag
type MaxPowerCmd struct {
	Cmd      struct{} `"maxpower"` //nolint
	Channel  int      `@Int`       //nolint
	Negative bool     `[ @"-" ]`   //nolint
	Power    int      `@Int`       //nolint
}

// noinspection GoStructTag
type ConfigCmd struct {
	Cmd    struct{}      `"config"` //nolint
	Option *ConfigOption `[ @@ ]`   //nolint
}

// noinspection GoStructTag
type ConfigOption struct {
	Name  string `@( "br" | "nat64" | "dhcp6pd" | "srpwait" | "autojoin" )` //nolint
	Value string `@( "on" | "off" )`                                        //nolint
}

// noinspection GoStructTag
type InfraLinkCmd struct {
	Cmd    struct{} `"infralink"`           //nolint
	Name   string   `[ @( Ident | String )` //nolint
	Socket *int     `  [ "socket" @Int ] ]` //nolint
}

// noinspection GoStructTag
type Nat64PrefixCmd struct {
	Cmd    struct{} `"nat64prefix"` //nolint
	Prefix string   `[ @String ]`   //nolint
}

// noinspection GoStructTag
type DnsCmd struct {
	Cmd     struct{} `"dns"`       //nolint
	Servers []string `{ @String }` //nolint
}

// noinspection GoStructTag
type TrelCmd struct {
	Cmd   struct{} `"trel"`                    //nolint
	State string   `@( "enable" | "disable" )` //nolint
}

// noinspection GoStructTag
type EphemeralKeyCmd struct {
	Cmd        struct{} `"ephemeralkey"`    //nolint
	Lifetime   *int     `( "activate" @Int` //nolint
	Deactivate bool     `| @"deactivate" )` //nolint
}

// noinspection GoStructTag
type OtCmd struct {
	Cmd         struct{} `"ot"`               //nolint
	Interactive bool     `[ @"interactive" ]` //nolint
	Line        string   `@String`            //nolint
}

// noinspection GoStructTag
type DumpCmd struct {
	Cmd struct{} `"dump"` //nolint
}

// noinspection GoStructTag
type TerminateCmd struct {
	Cmd struct{} `"terminate"` //nolint
}

// noinspection GoStructTag
type LogLevelCmd struct {
	Cmd   struct{} `"log"`                                                             //nolint
	Level string   `[@( "micro"|"trace"|"debug"|"info"|"note"|"warn"|"error"|"off" )]` //nolint
}

// noinspection GoStructTag
type ExitCmd struct {
	Cmd struct{} `"exit"` //nolint
}

// noinspection GoStructTag
type HelpCmd struct {
	Cmd       struct{} `"help"`       //nolint
	HelpTopic string   `[ (@Ident) ]` //nolint
}

var (
	commandParser = participle.MustBuild(&Command{})
)

func parseBytes(b []byte, cmd *Command) error {
	return commandParser.ParseBytes(b, cmd)
}
