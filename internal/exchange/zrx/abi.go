package zrx

// ExchangeABI 0x v1 Exchange 合约中 keeper 用到的方法
const ExchangeABI = `[
	{
		"constant": false,
		"inputs": [
			{"name": "orderAddresses", "type": "address[5]"},
			{"name": "orderValues", "type": "uint256[6]"},
			{"name": "cancelTakerTokenAmount", "type": "uint256"}
		],
		"name": "cancelOrder",
		"outputs": [{"name": "", "type": "uint256"}],
		"payable": false,
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "orderHash", "type": "bytes32"}],
		"name": "getUnavailableTakerTokenAmount",
		"outputs": [{"name": "", "type": "uint256"}],
		"payable": false,
		"type": "function"
	}
]`
