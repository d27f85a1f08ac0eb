package scw

// Creation bytecode of the 2FA wallet contract (solc 0.8.13, optimized).
const walletBytecodeHex = "0x60803461009357601f6104cb38819003918201601f19168301916001600160401b038311848410176100985780849260409485528339810103126100935780610056602061004f610084946100ae565b92016100ae565b600080546001600160a01b039384166001600160a01b03199182161790915560018054929093169116179055565b60405161040890816100c38239f35b600080fd5b634e487b7160e01b600052604160045260246000fd5b51906001600160a01b03821682036100935756fe6080604052600436101561001b575b361561001957600080fd5b005b6000803560e01c9081630565bb6714610082575080631ea0be9f146100795780635d1222aa146100705780638da5cb5b146100675763affed0e00361000e57610062610182565b61000e565b506100626101bf565b50610062610182565b5061006261012a565b346101275760607ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffc3601126101275760043573ffffffffffffffffffffffffffffffffffffffff81168103610123576044359067ffffffffffffffff9081831161011f573660238401121561011f57826004013591821161011f57366024838501011161011f57602461011a93019060243590610212565b604051f35b8380fd5b5080fd5b80fd5b503461017d5760007ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffc36011261017d57602073ffffffffffffffffffffffffffffffffffffffff60015416604051908152f35b600080fd5b503461017d5760007ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffc36011261017d576020600254604051908152f35b503461017d5760007ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffc36011261017d57602073ffffffffffffffffffffffffffffffffffffffff60005416604051908152f35b919060009373ffffffffffffffffffffffffffffffffffffffff85541633036102aa5761024661024182610389565b610338565b90808252602082019336828201116102a65791866020838298969488968499378301015251925af13d1561029d573d61028161024182610389565b908152809260203d92013e5b156102955750565b602081519101fd5b6060915061028d565b8680fd5b60646040517f08c379a000000000000000000000000000000000000000000000000000000000815260206004820152600f60248201527f3246413a204f6e6c79206f776e657200000000000000000000000000000000006044820152fd5b507f4e487b7100000000000000000000000000000000000000000000000000000000600052604160045260246000fd5b907fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffe0601f604051930116820182811067ffffffffffffffff82111761037c57604052565b610384610308565b604052565b7fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffe0601f60209267ffffffffffffffff81116103c5575b01160190565b6103cd610308565b6103bf56fea2646970667358221220e60878e104ed6981f5508e974bba6b7a6b90d85216812e8769568aefe57b6ab464736f6c634300080d0033"
